package importer

import (
	"fmt"
	"strings"
)

// FieldKey is the canonical identifier of one shipment attribute.
type FieldKey string

const (
	FieldProjectName       FieldKey = "project_name"
	FieldDriverName        FieldKey = "driver_name"
	FieldLoadingLocation   FieldKey = "loading_location"
	FieldUnloadingLocation FieldKey = "unloading_location"
	FieldLoadingDate       FieldKey = "loading_date"
	FieldLoadingWeight     FieldKey = "loading_weight"

	FieldChainName               FieldKey = "chain_name"
	FieldLicensePlate            FieldKey = "license_plate"
	FieldDriverPhone             FieldKey = "driver_phone"
	FieldUnloadingDate           FieldKey = "unloading_date"
	FieldUnloadingWeight         FieldKey = "unloading_weight"
	FieldCurrentCost             FieldKey = "current_cost"
	FieldExtraCost               FieldKey = "extra_cost"
	FieldTransportType           FieldKey = "transport_type"
	FieldCargoType               FieldKey = "cargo_type"
	FieldRemarks                 FieldKey = "remarks"
	FieldOtherPlatformNames      FieldKey = "other_platform_names"
	FieldExternalTrackingNumbers FieldKey = "external_tracking_numbers"
)

// FieldKind drives how a cell is converted into a typed Value.
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindDate
	// KindList is a comma separated list of names.
	KindList
	// KindTrackingGroups is a comma separated list of groups, each group a
	// "|" separated list of tracking numbers.
	KindTrackingGroups
	// KindReference is a name that must be resolved to a foreign id.
	KindReference
)

// FieldMeta is the fixed metadata of a FieldKey.
type FieldMeta struct {
	Key         FieldKey  `json:"key"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Kind        FieldKind `json:"-"`
	Column      string    `json:"-"`
	Updatable   bool      `json:"updatable"`
	Synonyms    []string  `json:"-"`
}

var fieldTable = []FieldMeta{
	{Key: FieldProjectName, Label: "项目名称", Description: "项目", Category: "定位", Kind: KindText, Column: "project_name",
		Synonyms: []string{"项目", "project"}},
	{Key: FieldDriverName, Label: "司机姓名", Description: "司机", Category: "定位", Kind: KindText, Column: "driver_name",
		Synonyms: []string{"司机", "驾驶员", "driver"}},
	{Key: FieldLoadingLocation, Label: "装货地点", Description: "装货地", Category: "定位", Kind: KindText, Column: "loading_location",
		Synonyms: []string{"装货地", "起点", "发货地", "loading"}},
	{Key: FieldUnloadingLocation, Label: "卸货地点", Description: "卸货地", Category: "定位", Kind: KindText, Column: "unloading_location",
		Synonyms: []string{"卸货地", "终点", "收货地", "unloading"}},
	{Key: FieldLoadingDate, Label: "装货日期", Description: "装货日期", Category: "定位", Kind: KindDate, Column: "loading_date",
		Synonyms: []string{"装货时间", "发车日期", "load_date"}},
	{Key: FieldLoadingWeight, Label: "装货数量", Description: "装货重量/数量", Category: "定位", Kind: KindNumber, Column: "loading_weight",
		Synonyms: []string{"装货重量", "装载量", "发货量", "load_weight"}},

	{Key: FieldChainName, Label: "合作链路", Description: "合作方链路名称", Category: "基础", Kind: KindReference, Column: "chain_id", Updatable: true,
		Synonyms: []string{"链路", "合作方链路", "chain"}},
	{Key: FieldLicensePlate, Label: "车牌号", Description: "车辆牌照", Category: "基础", Kind: KindText, Column: "license_plate", Updatable: true,
		Synonyms: []string{"车牌", "牌照", "plate"}},
	{Key: FieldDriverPhone, Label: "司机电话", Description: "司机联系电话", Category: "基础", Kind: KindText, Column: "driver_phone", Updatable: true,
		Synonyms: []string{"电话", "手机", "联系方式", "phone"}},
	{Key: FieldUnloadingDate, Label: "卸货日期", Description: "卸货完成日期", Category: "日期", Kind: KindDate, Column: "unloading_date", Updatable: true,
		Synonyms: []string{"卸货时间", "到达日期", "unload_date"}},
	{Key: FieldUnloadingWeight, Label: "卸货数量", Description: "卸货重量/数量/次数/体积", Category: "数量", Kind: KindNumber, Column: "unloading_weight", Updatable: true,
		Synonyms: []string{"卸货重量", "卸载量", "到货量", "unload_weight"}},
	{Key: FieldCurrentCost, Label: "运费金额", Description: "司机应收运费", Category: "费用", Kind: KindNumber, Column: "current_cost", Updatable: true,
		Synonyms: []string{"运费", "当前费用", "基础运费", "cost"}},
	{Key: FieldExtraCost, Label: "额外费用", Description: "额外的费用", Category: "费用", Kind: KindNumber, Column: "extra_cost", Updatable: true,
		Synonyms: []string{"额外", "附加费", "extra"}},
	{Key: FieldTransportType, Label: "运输类型", Description: "实际运输/退货", Category: "分类", Kind: KindText, Column: "transport_type", Updatable: true,
		Synonyms: []string{"类型", "type"}},
	{Key: FieldCargoType, Label: "货物类型", Description: "货物分类", Category: "分类", Kind: KindText, Column: "cargo_type", Updatable: true,
		Synonyms: []string{"货类", "cargo"}},
	{Key: FieldRemarks, Label: "备注", Description: "运单备注信息", Category: "备注", Kind: KindText, Column: "remarks", Updatable: true,
		Synonyms: []string{"说明", "注释", "remark", "note"}},
	{Key: FieldOtherPlatformNames, Label: "其他平台名称", Description: "外部平台名称（逗号分隔）", Category: "平台", Kind: KindList, Column: "other_platform_names", Updatable: true,
		Synonyms: []string{"平台名称", "其他平台", "platform"}},
	{Key: FieldExternalTrackingNumbers, Label: "其他平台运单号", Description: "外部平台运单号（|和逗号分隔）", Category: "平台", Kind: KindTrackingGroups, Column: "external_tracking_numbers", Updatable: true,
		Synonyms: []string{"外部运单号", "平台运单号", "tracking"}},
}

var fieldIndex = func() map[FieldKey]FieldMeta {
	m := make(map[FieldKey]FieldMeta, len(fieldTable))
	for _, f := range fieldTable {
		m[f.Key] = f
	}
	return m
}()

// Fields returns the metadata of every known field in table order.
func Fields() []FieldMeta {
	out := make([]FieldMeta, len(fieldTable))
	copy(out, fieldTable)
	return out
}

// UpdatableFields returns the fields an operator may select for update.
func UpdatableFields() []FieldMeta {
	var out []FieldMeta
	for _, f := range fieldTable {
		if f.Updatable {
			out = append(out, f)
		}
	}
	return out
}

// IdentificationFields returns the fields used to locate an existing record.
func IdentificationFields() []FieldMeta {
	var out []FieldMeta
	for _, f := range fieldTable {
		if !f.Updatable {
			out = append(out, f)
		}
	}
	return out
}

func LookupField(key FieldKey) (FieldMeta, bool) {
	f, ok := fieldIndex[key]
	return f, ok
}

// FieldSet is a set of operator-selected fields.
type FieldSet map[FieldKey]struct{}

func NewFieldSet(keys ...FieldKey) FieldSet {
	s := make(FieldSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// ParseFieldSet builds a set from field names, rejecting unknown and
// non-updatable keys.
func ParseFieldSet(names []string) (FieldSet, error) {
	s := make(FieldSet, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		meta, ok := fieldIndex[FieldKey(n)]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", n)
		}
		if !meta.Updatable {
			return nil, fmt.Errorf("field %q is an identification field and cannot be updated", n)
		}
		s[meta.Key] = struct{}{}
	}
	return s, nil
}

func (s FieldSet) Has(key FieldKey) bool {
	_, ok := s[key]
	return ok
}

// Keys returns the members in field table order.
func (s FieldSet) Keys() []FieldKey {
	var out []FieldKey
	for _, f := range fieldTable {
		if s.Has(f.Key) {
			out = append(out, f.Key)
		}
	}
	return out
}
