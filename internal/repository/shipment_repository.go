package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amai2222/shipment-data-view-sub002/internal/importer"
	"github.com/amai2222/shipment-data-view-sub002/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	errRecordNotFound  = errors.New("record not found")
	errProjectNotFound = errors.New("project not found")
)

// ShipmentRepository is the SQL implementation of importer.RecordStore.
type ShipmentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewShipmentRepository(db *sqlx.DB) *ShipmentRepository {
	return &ShipmentRepository{db: db, now: time.Now}
}

var _ importer.RecordStore = (*ShipmentRepository)(nil)

const recordColumns = `lr.id, lr.auto_number, lr.project_id, lr.project_name, lr.chain_id,
	pc.chain_name, lr.driver_name, lr.license_plate, lr.driver_phone,
	lr.loading_location, lr.unloading_location, lr.loading_date, lr.unloading_date,
	lr.loading_weight, lr.unloading_weight, lr.current_cost, lr.extra_cost,
	lr.transport_type, lr.cargo_type, lr.remarks, lr.other_platform_names,
	lr.external_tracking_numbers`

// FindRecordByKey returns the newest record whose key columns equal key.
func (r *ShipmentRepository) FindRecordByKey(ctx context.Context, key importer.IdentificationKey) (*importer.ExistingRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM logistics_records lr
		LEFT JOIN partner_chains pc ON pc.id = lr.chain_id
		WHERE lr.project_name = ? AND lr.driver_name = ?
		  AND lr.loading_location = ? AND lr.unloading_location = ?`
	args := []interface{}{key.ProjectName, key.DriverName, key.LoadingLocation, key.UnloadingLocation}
	if key.LoadingDate != nil {
		query += " AND lr.loading_date = ?"
		args = append(args, key.LoadingDate.Format(importer.DateLayout))
	}
	if key.LoadingWeight != nil {
		query += " AND lr.loading_weight = ?"
		args = append(args, *key.LoadingWeight)
	}
	query += " ORDER BY lr.created_at DESC LIMIT 1"

	var rec models.LogisticsRecord
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find record %s: %w", key, err)
	}
	return toExistingRecord(&rec), nil
}

// FindReferencesByNames resolves chain names within the named project in one
// query.
func (r *ShipmentRepository) FindReferencesByNames(ctx context.Context, names []string, scope string) (map[string]string, error) {
	out := make(map[string]string, len(names))
	if len(names) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT pc.chain_name, pc.id
		FROM partner_chains pc
		JOIN projects p ON p.id = pc.project_id
		WHERE p.name = ? AND pc.chain_name IN (?)`, scope, names)
	if err != nil {
		return nil, fmt.Errorf("failed to build chain lookup: %w", err)
	}

	var rows []models.PartnerChain
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to resolve chains in project %q: %w", scope, err)
	}
	for _, c := range rows {
		out[c.ChainName] = c.ID
	}
	return out, nil
}

// ApplyBatch runs every operation inside one transaction, each behind its
// own savepoint, so a failing row is rolled back alone. Only begin, savepoint
// and commit failures are returned as errors.
func (r *ShipmentRepository) ApplyBatch(ctx context.Context, ops []importer.UpdateOperation) (*importer.BatchResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res := &importer.BatchResult{Errors: []importer.RowFailure{}}
	for i, op := range ops {
		rowErr, err := withSavepoint(ctx, tx, i, func() error {
			return r.applyOne(ctx, tx, op)
		})
		if err != nil {
			return nil, err
		}
		if rowErr != nil {
			res.Errors = append(res.Errors, importer.RowFailure{Index: i, RecordID: op.RecordID, Message: rowErr.Error()})
			continue
		}
		res.SuccessCount++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return res, nil
}

func (r *ShipmentRepository) applyOne(ctx context.Context, tx *sqlx.Tx, op importer.UpdateOperation) error {
	var (
		sets []string
		args []interface{}
	)
	for _, meta := range importer.UpdatableFields() {
		v, ok := op.Fields[meta.Key]
		if !ok {
			continue
		}
		arg, err := columnValue(meta, v)
		if err != nil {
			return err
		}
		sets = append(sets, meta.Column+" = ?")
		args = append(args, arg)
	}
	if len(sets) == 0 {
		return errors.New("no fields to update")
	}
	args = append(args, op.RecordID)

	query := "UPDATE logistics_records SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return errRecordNotFound
	}
	return nil
}

// CreateRecords inserts every draft inside one transaction with a savepoint
// per draft. Project and chain names are resolved inside the transaction.
func (r *ShipmentRepository) CreateRecords(ctx context.Context, drafts []importer.NewRecordDraft) (*importer.CreateResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res := &importer.CreateResult{Errors: []importer.CreateFailure{}}
	for i, d := range drafts {
		rowErr, err := withSavepoint(ctx, tx, i, func() error {
			return r.createOne(ctx, tx, d)
		})
		if err != nil {
			return nil, err
		}
		if rowErr != nil {
			res.ErrorCount++
			res.Errors = append(res.Errors, importer.CreateFailure{Index: i, Message: rowErr.Error()})
			continue
		}
		res.SuccessCount++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return res, nil
}

func (r *ShipmentRepository) createOne(ctx context.Context, tx *sqlx.Tx, d importer.NewRecordDraft) error {
	project := d.Fields.Text(importer.FieldProjectName)
	var projectID string
	err := tx.GetContext(ctx, &projectID, tx.Rebind("SELECT id FROM projects WHERE name = ?"), project)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", errProjectNotFound, project)
	}
	if err != nil {
		return fmt.Errorf("failed to look up project: %w", err)
	}

	fields := d.Fields
	if chain, ok := fields.Get(importer.FieldChainName); ok && chain.Ref == "" {
		var chainID string
		err := tx.GetContext(ctx, &chainID,
			tx.Rebind("SELECT id FROM partner_chains WHERE project_id = ? AND chain_name = ?"), projectID, chain.Text)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("合作链路 %q not found in project %q", chain.Text, project)
		}
		if err != nil {
			return fmt.Errorf("failed to look up chain: %w", err)
		}
		fields = copyFields(fields)
		fields[importer.FieldChainName] = importer.ReferenceValue(chain.Text, chainID)
	}

	id := uuid.New()
	columns := []string{"id", "auto_number", "project_id", "created_at"}
	args := []interface{}{id.String(), r.autoNumber(id), projectID, r.now()}
	for _, meta := range importer.Fields() {
		v, ok := fields.Get(meta.Key)
		if !ok {
			continue
		}
		arg, err := columnValue(meta, v)
		if err != nil {
			return err
		}
		columns = append(columns, meta.Column)
		args = append(args, arg)
	}

	query := "INSERT INTO logistics_records (" + strings.Join(columns, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// autoNumber follows the YDN<date>-<suffix> waybill numbering.
func (r *ShipmentRepository) autoNumber(id uuid.UUID) string {
	return fmt.Sprintf("YDN%s-%s", r.now().Format("20060102"), strings.ReplaceAll(id.String(), "-", "")[:8])
}

// withSavepoint runs fn behind a savepoint. A failing fn is rolled back to
// the savepoint and returned as the row error; the second return is for
// failures of the savepoint statements themselves.
func withSavepoint(ctx context.Context, tx *sqlx.Tx, i int, fn func() error) (rowErr error, err error) {
	name := fmt.Sprintf("row_%d", i)
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to create savepoint: %w", err)
	}
	if rowErr := fn(); rowErr != nil {
		if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); err != nil {
			return nil, fmt.Errorf("failed to roll back savepoint: %w", err)
		}
		return rowErr, nil
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return nil, fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil, nil
}

// columnValue converts a typed value into the argument stored in
// meta.Column. Lists are stored as JSON arrays and dates as text.
func columnValue(meta importer.FieldMeta, v importer.Value) (interface{}, error) {
	switch v.Kind {
	case importer.ValueNumber:
		return v.Number, nil
	case importer.ValueDate:
		return models.NullDate{Time: v.Date, Valid: true}, nil
	case importer.ValueList:
		b, err := json.Marshal(v.List)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", meta.Key, err)
		}
		return string(b), nil
	case importer.ValueReference:
		if v.Ref == "" {
			return nil, fmt.Errorf("%s %q is not resolved", meta.Label, v.Text)
		}
		return v.Ref, nil
	}
	return v.Text, nil
}

func copyFields(f importer.ShipmentFields) importer.ShipmentFields {
	out := make(importer.ShipmentFields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func toExistingRecord(rec *models.LogisticsRecord) *importer.ExistingRecord {
	values := map[importer.FieldKey]importer.Value{
		importer.FieldProjectName:       importer.TextValue(rec.ProjectName),
		importer.FieldDriverName:        importer.TextValue(rec.DriverName),
		importer.FieldLoadingLocation:   importer.TextValue(rec.LoadingLocation),
		importer.FieldUnloadingLocation: importer.TextValue(rec.UnloadingLocation),
	}
	setText := func(key importer.FieldKey, s sql.NullString) {
		if s.Valid && s.String != "" {
			values[key] = importer.TextValue(s.String)
		}
	}
	setNumber := func(key importer.FieldKey, n sql.NullFloat64) {
		if n.Valid {
			values[key] = importer.NumberValue(n.Float64)
		}
	}
	setDate := func(key importer.FieldKey, d models.NullDate) {
		if d.Valid {
			values[key] = importer.DateValue(d.Time)
		}
	}
	setList := func(key importer.FieldKey, s sql.NullString) {
		if items := decodeList(s); len(items) > 0 {
			values[key] = importer.ListValue(items)
		}
	}

	setText(importer.FieldLicensePlate, rec.LicensePlate)
	setText(importer.FieldDriverPhone, rec.DriverPhone)
	setText(importer.FieldTransportType, rec.TransportType)
	setText(importer.FieldCargoType, rec.CargoType)
	setText(importer.FieldRemarks, rec.Remarks)
	setNumber(importer.FieldLoadingWeight, rec.LoadingWeight)
	setNumber(importer.FieldUnloadingWeight, rec.UnloadingWeight)
	setNumber(importer.FieldCurrentCost, rec.CurrentCost)
	setNumber(importer.FieldExtraCost, rec.ExtraCost)
	setDate(importer.FieldLoadingDate, rec.LoadingDate)
	setDate(importer.FieldUnloadingDate, rec.UnloadingDate)
	setList(importer.FieldOtherPlatformNames, rec.OtherPlatformNames)
	setList(importer.FieldExternalTrackingNumbers, rec.ExternalTrackingNumbers)
	if rec.ChainID.Valid {
		values[importer.FieldChainName] = importer.ReferenceValue(rec.ChainName.String, rec.ChainID.String)
	}

	return &importer.ExistingRecord{
		ID:          rec.ID,
		AutoNumber:  rec.AutoNumber,
		ProjectName: rec.ProjectName,
		Values:      values,
	}
}

// decodeList reads a JSON array column, falling back to the comma form
// written by older clients.
func decodeList(s sql.NullString) []string {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s.String), &items); err == nil {
		return items
	}
	return importer.SplitList(s.String)
}
