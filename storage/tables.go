package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/c360studio/policypipe/document"
)

// SaveTable stores an extracted table with its classification. The full
// table grid lives in the payload column; the classified type is lifted out
// for querying.
func (s *Store) SaveTable(ctx context.Context, table *document.TableJSON, tableType document.TableType) error {
	if err := table.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("marshal table %s: %w", table.TableID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO document_tables (table_id, document_id, page_number, table_index, table_type, payload, num_rows, num_cols, extraction_source, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (table_id) DO UPDATE SET
			table_type = EXCLUDED.table_type,
			payload = EXCLUDED.payload,
			num_rows = EXCLUDED.num_rows,
			num_cols = EXCLUDED.num_cols,
			extraction_source = EXCLUDED.extraction_source,
			confidence = EXCLUDED.confidence`,
		table.TableID, table.DocumentID, table.PageNumber, table.TableIndex,
		tableType, payload, table.NumRows, table.NumCols, table.Source, table.Confidence)
	if err != nil {
		return fmt.Errorf("save table %s: %w", table.TableID, err)
	}
	return nil
}

// GetTables returns all tables for a document in page order, with their
// classified types.
func (s *Store) GetTables(ctx context.Context, documentID string) ([]document.TableJSON, map[string]document.TableType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, table_type FROM document_tables
		WHERE document_id = $1 ORDER BY page_number, table_index`, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("query tables for %s: %w", documentID, err)
	}
	defer rows.Close()

	var tables []document.TableJSON
	types := make(map[string]document.TableType)
	for rows.Next() {
		var payload []byte
		var tableType document.TableType
		if err := rows.Scan(&payload, &tableType); err != nil {
			return nil, nil, fmt.Errorf("scan table: %w", err)
		}
		var t document.TableJSON
		if err := json.Unmarshal(payload, &t); err != nil {
			return nil, nil, fmt.Errorf("unmarshal table: %w", err)
		}
		tables = append(tables, t)
		types[t.TableID] = tableType
	}
	return tables, types, rows.Err()
}

// ReplaceSOVItems replaces the normalized statement-of-values rows derived
// from a table.
func (s *Store) ReplaceSOVItems(ctx context.Context, documentID, tableID string, items []document.SOVItem) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace sov items: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sov_items WHERE document_id = $1 AND table_id = $2`, documentID, tableID); err != nil {
		return fmt.Errorf("clear sov items for %s: %w", tableID, err)
	}

	for i := range items {
		item := &items[i]
		if err := item.Validate(); err != nil {
			return err
		}
		if item.ID == "" {
			item.ID = "sov:" + uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sov_items (id, document_id, table_id, location_number, address, building_value, contents_value, business_income, total_insured_value, construction_type, year_built, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())`,
			item.ID, item.DocumentID, item.TableID, item.LocationNumber, item.Address,
			item.BuildingValue, item.ContentsValue, item.BusinessIncome,
			item.TotalInsured, item.ConstructionType, item.YearBuilt); err != nil {
			return fmt.Errorf("insert sov item: %w", err)
		}
	}

	return tx.Commit()
}

// GetSOVItems returns the normalized SOV rows for a document.
func (s *Store) GetSOVItems(ctx context.Context, documentID string) ([]document.SOVItem, error) {
	var items []document.SOVItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, document_id, table_id, location_number, address, building_value, contents_value, business_income, total_insured_value, construction_type, year_built, created_at
		FROM sov_items WHERE document_id = $1 ORDER BY location_number`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query sov items for %s: %w", documentID, err)
	}
	return items, nil
}

// ReplaceLossRunClaims replaces the normalized loss-run rows derived from a
// table.
func (s *Store) ReplaceLossRunClaims(ctx context.Context, documentID, tableID string, claims []document.LossRunClaim) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace loss run claims: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM loss_run_claims WHERE document_id = $1 AND table_id = $2`, documentID, tableID); err != nil {
		return fmt.Errorf("clear loss run claims for %s: %w", tableID, err)
	}

	for i := range claims {
		c := &claims[i]
		if c.ID == "" {
			c.ID = "claim:" + uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loss_run_claims (id, document_id, table_id, claim_number, loss_date, description, paid_amount, reserved, total_incurred, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
			c.ID, c.DocumentID, c.TableID, c.ClaimNumber, c.LossDate, c.Description,
			c.PaidAmount, c.Reserved, c.TotalIncurred, c.Status); err != nil {
			return fmt.Errorf("insert loss run claim: %w", err)
		}
	}

	return tx.Commit()
}

// GetLossRunClaims returns the normalized loss-run rows for a document.
func (s *Store) GetLossRunClaims(ctx context.Context, documentID string) ([]document.LossRunClaim, error) {
	var claims []document.LossRunClaim
	err := s.db.SelectContext(ctx, &claims, `
		SELECT id, document_id, table_id, claim_number, loss_date, description, paid_amount, reserved, total_incurred, status, created_at
		FROM loss_run_claims WHERE document_id = $1 ORDER BY loss_date NULLS LAST`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query loss run claims for %s: %w", documentID, err)
	}
	return claims, nil
}
