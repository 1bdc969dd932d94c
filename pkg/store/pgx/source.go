package pgx

import (
	"context"
	"errors"

	"github.com/civicworks/lexgraph/backend/pkg/common"
	"github.com/civicworks/lexgraph/backend/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
)

func (s *Store) GetOrCreateSource(ctx context.Context, src *common.Source) (*common.Source, bool, error) {
	row := s.conn.QueryRow(ctx, insertSourceSQL,
		src.ID,
		src.Locator,
		src.Fingerprint,
		src.Kind,
		src.Title,
		src.Jurisdiction,
		string(src.Authority),
		string(src.DocumentType),
		src.Organization,
		src.Tags,
		src.Notes,
	)

	created, err := scanSource(row)
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgxv5.ErrNoRows) {
		return nil, false, err
	}

	// The fingerprint already exists, return the canonical record.
	existing, err := scanSource(s.conn.QueryRow(ctx, getSourceByFingerprintSQL, src.Fingerprint))
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, false, store.ErrNotFound
		}
		return nil, false, err
	}
	return existing, false, nil
}

func (s *Store) Source(ctx context.Context, id string) (*common.Source, error) {
	src, err := scanSource(s.conn.QueryRow(ctx, getSourceSQL, id))
	if err != nil {
		if errors.Is(err, pgxv5.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return src, nil
}

func (s *Store) AppendSourceLocator(ctx context.Context, sourceID, locator string) error {
	tag, err := s.conn.Exec(ctx, appendSourceLocatorSQL, sourceID, locator)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the source is missing or the locator is already recorded.
		// Distinguish the two so missing sources surface as errors.
		var exists bool
		if err := s.conn.QueryRow(ctx, sourceExistsSQL, sourceID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return store.ErrNotFound
		}
	}
	return nil
}

func scanSource(row pgxv5.Row) (*common.Source, error) {
	var src common.Source
	var authority, docType string
	err := row.Scan(
		&src.ID,
		&src.Locator,
		&src.Fingerprint,
		&src.Kind,
		&src.Title,
		&src.Jurisdiction,
		&authority,
		&docType,
		&src.Organization,
		&src.Tags,
		&src.Notes,
		&src.MergedLocators,
		&src.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	src.Authority = common.Authority(authority)
	src.DocumentType = common.DocumentType(docType)
	return &src, nil
}

const sourceColumns = `id, locator, fingerprint, kind, title, jurisdiction,
authority, document_type, organization, tags, notes, merged_locators, created_at`

const insertSourceSQL = `
INSERT INTO sources (id, locator, fingerprint, kind, title, jurisdiction,
                     authority, document_type, organization, tags, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (fingerprint) DO NOTHING
RETURNING ` + sourceColumns + `;
`

const getSourceSQL = `
SELECT ` + sourceColumns + `
FROM sources
WHERE id = $1;
`

const getSourceByFingerprintSQL = `
SELECT ` + sourceColumns + `
FROM sources
WHERE fingerprint = $1;
`

const appendSourceLocatorSQL = `
UPDATE sources
SET merged_locators = array_append(merged_locators, $2)
WHERE id = $1
  AND locator <> $2
  AND NOT ($2 = ANY(merged_locators));
`

const sourceExistsSQL = `
SELECT EXISTS (SELECT 1 FROM sources WHERE id = $1);
`
