package models

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

type Project struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type PartnerChain struct {
	ID        string `db:"id" json:"id"`
	ChainName string `db:"chain_name" json:"chain_name"`
	ProjectID string `db:"project_id" json:"project_id"`
}

// LogisticsRecord is one row of logistics_records joined with its chain name.
type LogisticsRecord struct {
	ID                      string          `db:"id" json:"id"`
	AutoNumber              string          `db:"auto_number" json:"auto_number"`
	ProjectID               sql.NullString  `db:"project_id" json:"project_id"`
	ProjectName             string          `db:"project_name" json:"project_name"`
	ChainID                 sql.NullString  `db:"chain_id" json:"chain_id"`
	ChainName               sql.NullString  `db:"chain_name" json:"chain_name"`
	DriverName              string          `db:"driver_name" json:"driver_name"`
	LicensePlate            sql.NullString  `db:"license_plate" json:"license_plate"`
	DriverPhone             sql.NullString  `db:"driver_phone" json:"driver_phone"`
	LoadingLocation         string          `db:"loading_location" json:"loading_location"`
	UnloadingLocation       string          `db:"unloading_location" json:"unloading_location"`
	LoadingDate             NullDate        `db:"loading_date" json:"loading_date"`
	UnloadingDate           NullDate        `db:"unloading_date" json:"unloading_date"`
	LoadingWeight           sql.NullFloat64 `db:"loading_weight" json:"loading_weight"`
	UnloadingWeight         sql.NullFloat64 `db:"unloading_weight" json:"unloading_weight"`
	CurrentCost             sql.NullFloat64 `db:"current_cost" json:"current_cost"`
	ExtraCost               sql.NullFloat64 `db:"extra_cost" json:"extra_cost"`
	TransportType           sql.NullString  `db:"transport_type" json:"transport_type"`
	CargoType               sql.NullString  `db:"cargo_type" json:"cargo_type"`
	Remarks                 sql.NullString  `db:"remarks" json:"remarks"`
	OtherPlatformNames      sql.NullString  `db:"other_platform_names" json:"other_platform_names"`
	ExternalTrackingNumbers sql.NullString  `db:"external_tracking_numbers" json:"external_tracking_numbers"`
}

// NullDate is a nullable calendar date. Drivers hand dates back as
// time.Time (mysql with parseTime, postgres) or as text (sqlite).
type NullDate struct {
	Time  time.Time
	Valid bool
}

const dateLayout = "2006-01-02"

func (d *NullDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		d.Time, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Time, d.Valid = v, true
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into NullDate", src)
}

func (d *NullDate) parse(s string) error {
	if s == "" {
		d.Time, d.Valid = time.Time{}, false
		return nil
	}
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time, d.Valid = t, true
	return nil
}

// Value writes the date as text so every driver stores the same form.
func (d NullDate) Value() (driver.Value, error) {
	if !d.Valid {
		return nil, nil
	}
	return d.Time.Format(dateLayout), nil
}
