package repository

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/amai2222/shipment-data-view-sub002/internal/importer"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE projects (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE partner_chains (
	id         TEXT PRIMARY KEY,
	chain_name TEXT NOT NULL,
	project_id TEXT NOT NULL REFERENCES projects(id)
);
CREATE TABLE logistics_records (
	id                        TEXT PRIMARY KEY,
	auto_number               TEXT NOT NULL UNIQUE,
	project_id                TEXT,
	project_name              TEXT NOT NULL,
	chain_id                  TEXT,
	driver_name               TEXT NOT NULL,
	license_plate             TEXT,
	driver_phone              TEXT,
	loading_location          TEXT NOT NULL,
	unloading_location        TEXT NOT NULL,
	loading_date              TEXT,
	unloading_date            TEXT,
	loading_weight            REAL,
	unloading_weight          REAL CHECK (unloading_weight IS NULL OR unloading_weight >= 0),
	current_cost              REAL,
	extra_cost                REAL,
	transport_type            TEXT,
	cargo_type                TEXT,
	remarks                   TEXT,
	other_platform_names      TEXT,
	external_tracking_numbers TEXT,
	created_at                TEXT NOT NULL
);
INSERT INTO projects (id, name) VALUES ('p1', '华东项目'), ('p2', '华南项目');
INSERT INTO partner_chains (id, chain_name, project_id) VALUES
	('c1', '链路甲', 'p1'), ('c2', '链路乙', 'p1'), ('c9', '链路甲', 'p2');
INSERT INTO logistics_records (id, auto_number, project_id, project_name, chain_id, driver_name,
	loading_location, unloading_location, loading_date, loading_weight, unloading_weight,
	other_platform_names, created_at) VALUES
	('r-old', 'YDN20240301-00000001', 'p1', '华东项目', NULL, '张三', '上海', '杭州', '2024-03-01', 30, 9.8,
	 NULL, '2024-03-01 08:00:00'),
	('r-new', 'YDN20240301-00000002', 'p1', '华东项目', 'c1', '张三', '上海', '杭州', '2024-03-01', 30, 9.8,
	 '["滴滴","货拉拉"]', '2024-03-01 09:00:00'),
	('r-li', 'YDN20240302-00000003', 'p1', '华东项目', NULL, '李四', '上海', '杭州', '2024-03-02', 25, NULL,
	 '满帮,运满满', '2024-03-02 08:00:00');
`

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection keeps the in-memory database shared.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func newTestShipmentRepo(t *testing.T) (*ShipmentRepository, *sqlx.DB) {
	db := newTestDB(t)
	repo := NewShipmentRepository(db)
	repo.now = func() time.Time { return time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC) }
	return repo, db
}

func routeKey(driver string) importer.IdentificationKey {
	return importer.IdentificationKey{
		ProjectName:       "华东项目",
		DriverName:        driver,
		LoadingLocation:   "上海",
		UnloadingLocation: "杭州",
	}
}

func TestFindRecordByKeyReturnsNewest(t *testing.T) {
	repo, _ := newTestShipmentRepo(t)

	rec, err := repo.FindRecordByKey(context.Background(), routeKey("张三"))
	if err != nil {
		t.Fatalf("FindRecordByKey: %v", err)
	}
	if rec == nil || rec.ID != "r-new" {
		t.Fatalf("record = %+v, want r-new", rec)
	}
	if got := rec.Value(importer.FieldUnloadingWeight).String(); got != "9.8" {
		t.Errorf("unloading_weight = %q", got)
	}
	if got := rec.Value(importer.FieldLoadingDate).String(); got != "2024-03-01" {
		t.Errorf("loading_date = %q", got)
	}
	chain := rec.Value(importer.FieldChainName)
	if chain.Text != "链路甲" || chain.Ref != "c1" {
		t.Errorf("chain = %+v", chain)
	}
	if got := rec.Value(importer.FieldOtherPlatformNames).String(); got != "滴滴,货拉拉" {
		t.Errorf("other_platform_names = %q", got)
	}
}

func TestFindRecordByKeyMisses(t *testing.T) {
	repo, _ := newTestShipmentRepo(t)
	ctx := context.Background()

	rec, err := repo.FindRecordByKey(ctx, routeKey("王五"))
	if err != nil || rec != nil {
		t.Errorf("unknown driver: rec = %+v, err = %v", rec, err)
	}

	key := routeKey("李四")
	date := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	weight := 26.0
	key.LoadingDate, key.LoadingWeight = &date, &weight
	if rec, _ := repo.FindRecordByKey(ctx, key); rec != nil {
		t.Errorf("strict key with other weight matched %s", rec.ID)
	}
	weight = 25
	rec, err = repo.FindRecordByKey(ctx, key)
	if err != nil || rec == nil || rec.ID != "r-li" {
		t.Fatalf("strict key: rec = %+v, err = %v", rec, err)
	}
	if got := rec.Value(importer.FieldOtherPlatformNames).List; len(got) != 2 || got[1] != "运满满" {
		t.Errorf("legacy comma list decoded as %v", got)
	}
	if rec.Value(importer.FieldUnloadingWeight).Kind != "" {
		t.Error("NULL column must map to an absent value")
	}
}

func TestFindReferencesByNames(t *testing.T) {
	repo, _ := newTestShipmentRepo(t)
	ctx := context.Background()

	got, err := repo.FindReferencesByNames(ctx, []string{"链路甲", "链路乙", "链路丁"}, "华东项目")
	if err != nil {
		t.Fatalf("FindReferencesByNames: %v", err)
	}
	if len(got) != 2 || got["链路甲"] != "c1" || got["链路乙"] != "c2" {
		t.Errorf("resolved = %v", got)
	}

	got, err = repo.FindReferencesByNames(ctx, []string{"链路甲"}, "华南项目")
	if err != nil || got["链路甲"] != "c9" {
		t.Errorf("scoped lookup = %v, %v", got, err)
	}
	if got, err := repo.FindReferencesByNames(ctx, nil, "华东项目"); err != nil || len(got) != 0 {
		t.Errorf("empty lookup = %v, %v", got, err)
	}
}

func TestApplyBatchIsolatesRowFailures(t *testing.T) {
	repo, db := newTestShipmentRepo(t)
	ctx := context.Background()

	ops := []importer.UpdateOperation{
		{RecordID: "r-new", Row: 2, Fields: map[importer.FieldKey]importer.Value{
			importer.FieldUnloadingWeight: importer.NumberValue(10.2),
			importer.FieldChainName:       importer.ReferenceValue("链路乙", "c2"),
			importer.FieldUnloadingDate:   importer.DateValue(time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)),
		}},
		{RecordID: "r-missing", Row: 3, Fields: map[importer.FieldKey]importer.Value{
			importer.FieldRemarks: importer.TextValue("x"),
		}},
		{RecordID: "r-li", Row: 4, Fields: map[importer.FieldKey]importer.Value{
			importer.FieldUnloadingWeight: importer.NumberValue(-1),
			importer.FieldRemarks:         importer.TextValue("should roll back"),
		}},
		{RecordID: "r-old", Row: 5, Fields: map[importer.FieldKey]importer.Value{
			importer.FieldExternalTrackingNumbers: importer.ListValue([]string{"A1|A2", "B1"}),
		}},
	}

	res, err := repo.ApplyBatch(ctx, ops)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if res.SuccessCount != 2 || len(res.Errors) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Errors[0].Index != 1 || res.Errors[0].RecordID != "r-missing" || !strings.Contains(res.Errors[0].Message, "not found") {
		t.Errorf("first error = %+v", res.Errors[0])
	}
	if res.Errors[1].Index != 2 || res.Errors[1].RecordID != "r-li" {
		t.Errorf("second error = %+v", res.Errors[1])
	}

	var updated struct {
		UnloadingWeight float64 `db:"unloading_weight"`
		ChainID         string  `db:"chain_id"`
		UnloadingDate   string  `db:"unloading_date"`
	}
	if err := db.Get(&updated, "SELECT unloading_weight, chain_id, unloading_date FROM logistics_records WHERE id = 'r-new'"); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if updated.UnloadingWeight != 10.2 || updated.ChainID != "c2" || updated.UnloadingDate != "2024-03-03" {
		t.Errorf("r-new = %+v", updated)
	}

	var remarks sql.NullString
	if err := db.Get(&remarks, "SELECT remarks FROM logistics_records WHERE id = 'r-li'"); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if remarks.Valid {
		t.Errorf("failed row must be rolled back, remarks = %q", remarks.String)
	}

	var tracking string
	if err := db.Get(&tracking, "SELECT external_tracking_numbers FROM logistics_records WHERE id = 'r-old'"); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if tracking != `["A1|A2","B1"]` {
		t.Errorf("tracking numbers stored as %s", tracking)
	}
}

func TestApplyUpdatesRowsSharingARecord(t *testing.T) {
	repo, db := newTestShipmentRepo(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	executor := importer.NewExecutor(repo, repo, logger)

	item := func(row int, weight float64) importer.PreviewItem {
		nv := importer.NumberValue(weight)
		return importer.PreviewItem{
			Row:        row,
			Status:     importer.StatusMatched,
			RecordID:   "r-new",
			AutoNumber: "YDN20240301-00000002",
			Changes: []importer.FieldChange{{
				Field:      importer.FieldUnloadingWeight,
				OldValue:   importer.NumberValue(9.8),
				NewValue:   &nv,
				WillUpdate: true,
			}},
		}
	}

	out, err := executor.ApplyUpdates(context.Background(), []importer.PreviewItem{item(2, -1), item(3, 11)})
	if err != nil {
		t.Fatalf("ApplyUpdates: %v", err)
	}
	if len(out.RowErrors) != 1 || out.RowErrors[0].Row != 2 {
		t.Errorf("row errors = %+v", out.RowErrors)
	}
	if len(out.UpdatedFields) != 1 || out.UpdatedFields[0] != importer.FieldUnloadingWeight {
		t.Errorf("updated fields = %v", out.UpdatedFields)
	}
	var weight float64
	if err := db.Get(&weight, "SELECT unloading_weight FROM logistics_records WHERE id = 'r-new'"); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if weight != 11 {
		t.Errorf("unloading_weight = %v, want 11", weight)
	}

	out, err = executor.ApplyUpdates(context.Background(), []importer.PreviewItem{item(4, -2), item(5, -3)})
	if err != nil {
		t.Fatalf("both rows failing must still yield an outcome: %v", err)
	}
	if out.FailedCount != 2 || len(out.RowErrors) != 2 || out.RowErrors[0].Row != 4 || out.RowErrors[1].Row != 5 {
		t.Errorf("outcome = %+v", out)
	}
	if !out.Balanced() {
		t.Error("outcome not balanced")
	}
}

func TestCreateRecords(t *testing.T) {
	repo, db := newTestShipmentRepo(t)
	ctx := context.Background()

	base := func(project, driver string) importer.ShipmentFields {
		return importer.ShipmentFields{
			importer.FieldProjectName:       importer.TextValue(project),
			importer.FieldDriverName:        importer.TextValue(driver),
			importer.FieldLoadingLocation:   importer.TextValue("上海"),
			importer.FieldUnloadingLocation: importer.TextValue("宁波"),
			importer.FieldLoadingDate:       importer.DateValue(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
			importer.FieldCurrentCost:       importer.NumberValue(0),
		}
	}
	withChain := base("华东项目", "赵六")
	withChain[importer.FieldChainName] = importer.Value{Kind: importer.ValueReference, Text: "链路乙"}
	badChain := base("华东项目", "钱七")
	badChain[importer.FieldChainName] = importer.Value{Kind: importer.ValueReference, Text: "链路丁"}

	drafts := []importer.NewRecordDraft{
		{Row: 2, Fields: withChain},
		{Row: 3, Fields: base("不存在的项目", "孙八")},
		{Row: 4, Fields: badChain},
	}

	res, err := repo.CreateRecords(ctx, drafts)
	if err != nil {
		t.Fatalf("CreateRecords: %v", err)
	}
	if res.SuccessCount != 1 || res.ErrorCount != 2 || len(res.Errors) != 2 {
		t.Fatalf("result = %+v", res)
	}
	if res.Errors[0].Index != 1 || !strings.Contains(res.Errors[0].Message, "不存在的项目") {
		t.Errorf("first error = %+v", res.Errors[0])
	}
	if res.Errors[1].Index != 2 || !strings.Contains(res.Errors[1].Message, "链路丁") {
		t.Errorf("second error = %+v", res.Errors[1])
	}

	var created struct {
		AutoNumber string `db:"auto_number"`
		ProjectID  string `db:"project_id"`
		ChainID    string `db:"chain_id"`
	}
	if err := db.Get(&created, "SELECT auto_number, project_id, chain_id FROM logistics_records WHERE driver_name = '赵六'"); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.HasPrefix(created.AutoNumber, "YDN20240506-") || len(created.AutoNumber) != len("YDN20240506-")+8 {
		t.Errorf("auto number = %q", created.AutoNumber)
	}
	if created.ProjectID != "p1" || created.ChainID != "c2" {
		t.Errorf("created = %+v", created)
	}

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM logistics_records"); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 4 {
		t.Errorf("expected exactly one new record, have %d rows", count)
	}

	rec, err := repo.FindRecordByKey(ctx, importer.IdentificationKey{
		ProjectName: "华东项目", DriverName: "赵六", LoadingLocation: "上海", UnloadingLocation: "宁波",
	})
	if err != nil || rec == nil {
		t.Fatalf("created record not found: %v", err)
	}
	if got := rec.Value(importer.FieldCurrentCost).String(); got != "0" {
		t.Errorf("current_cost = %q", got)
	}
}
