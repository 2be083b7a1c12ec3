package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const entryColumns = `id, title, content, source_type, source_url, tags, category, word_count, quality_score, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var sourceType, tagsJSON, createdAt, updatedAt string
	var score sql.NullInt64
	if err := row.Scan(&e.ID, &e.Title, &e.Content, &sourceType, &e.SourceURL, &tagsJSON,
		&e.Category, &e.WordCount, &score, &createdAt, &updatedAt); err != nil {
		return Entry{}, err
	}
	e.SourceType = SourceType(sourceType)
	if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
		return Entry{}, fmt.Errorf("parsing tags for entry %s: %w", e.ID, err)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if score.Valid {
		v := int(score.Int64)
		e.QualityScore = &v
	}
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return Entry{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return Entry{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return e, nil
}

// CountWords returns the whitespace-separated word count of text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// NormalizeTags trims tags, drops empties and duplicates, and keeps first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func marshalTags(tags []string) (string, error) {
	b, err := json.Marshal(NormalizeTags(tags))
	if err != nil {
		return "", fmt.Errorf("marshalling tags: %w", err)
	}
	return string(b), nil
}

func validScore(score int) bool {
	return score >= 0 && score <= 100
}

// AddEntry validates e, assigns its ID and timestamps, and saves it.
func (s *Store) AddEntry(e Entry) (Entry, error) {
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" {
		return Entry{}, fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}
	if !e.SourceType.Valid() {
		return Entry{}, fmt.Errorf("%w: unknown source type %q", ErrInvalidEntry, e.SourceType)
	}
	if e.QualityScore != nil && !validScore(*e.QualityScore) {
		return Entry{}, fmt.Errorf("%w: quality score %d outside [0,100]", ErrInvalidEntry, *e.QualityScore)
	}
	if strings.TrimSpace(e.Category) == "" {
		e.Category = DefaultCategory
	}
	e.Tags = NormalizeTags(e.Tags)
	tagsJSON, err := marshalTags(e.Tags)
	if err != nil {
		return Entry{}, err
	}

	e.ID = uuid.New().String()
	e.WordCount = CountWords(e.Content)
	e.CreatedAt = now()
	e.UpdatedAt = e.CreatedAt

	var score any
	if e.QualityScore != nil {
		score = *e.QualityScore
	}

	_, err = s.db.Exec(`INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Content, string(e.SourceType), e.SourceURL, tagsJSON, e.Category,
		e.WordCount, score, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	return e, nil
}

func (s *Store) GetEntry(id string) (Entry, error) {
	e, err := scanEntry(s.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

// GetEntries loads the given entries in the order of ids.
func (s *Store) GetEntries(ids []string) ([]Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[string]Entry, len(ids))
	for _, batch := range idBatches(ids) {
		in, args := inClause(batch)
		rows, err := s.db.Query(`SELECT `+entryColumns+` FROM entries WHERE id IN (`+in+`)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			byID[e.ID] = e
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	results := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
		}
		results = append(results, e)
	}
	return results, nil
}

// ListEntries returns entries matching f, newest first.
func (s *Store) ListEntries(f EntryFilter) ([]Entry, error) {
	var where []string
	var args []any

	if f.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, string(f.SourceType))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Search != "" {
		like := "%" + likeEscaper.Replace(f.Search) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if f.MinScore > 0 {
		where = append(where, "quality_score >= ?")
		args = append(args, f.MinScore)
	}

	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// UpdateEntry applies u to the entry. Changing content recomputes the word
// count and clears the quality score.
func (s *Store) UpdateEntry(id string, u EntryUpdate) (Entry, error) {
	var sets []string
	var args []any

	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return Entry{}, fmt.Errorf("%w: title is required", ErrInvalidEntry)
		}
		sets = append(sets, "title = ?")
		args = append(args, title)
	}
	if u.Content != nil {
		sets = append(sets, "content = ?", "word_count = ?", "quality_score = NULL")
		args = append(args, *u.Content, CountWords(*u.Content))
	}
	if u.Tags != nil {
		tagsJSON, err := marshalTags(*u.Tags)
		if err != nil {
			return Entry{}, err
		}
		sets = append(sets, "tags = ?")
		args = append(args, tagsJSON)
	}
	if u.Category != nil {
		category := strings.TrimSpace(*u.Category)
		if category == "" {
			category = DefaultCategory
		}
		sets = append(sets, "category = ?")
		args = append(args, category)
	}

	if len(sets) == 0 {
		return s.GetEntry(id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(now()), id)

	res, err := s.db.Exec(`UPDATE entries SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return Entry{}, fmt.Errorf("updating entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Entry{}, err
	}
	if n == 0 {
		return Entry{}, ErrNotFound
	}
	return s.GetEntry(id)
}

// SetQualityScore stores a freshly computed score. UpdatedAt is left alone
// because the entry itself did not change.
func (s *Store) SetQualityScore(id string, score int) error {
	if !validScore(score) {
		return fmt.Errorf("%w: quality score %d outside [0,100]", ErrInvalidEntry, score)
	}
	res, err := s.db.Exec(`UPDATE entries SET quality_score = ? WHERE id = ?`, score, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteEntry(id string) error {
	res, err := s.db.Exec(`DELETE FROM entries WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEntries removes every listed entry and returns how many existed.
func (s *Store) DeleteEntries(ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted := 0
	err := s.inTx(func(tx *sql.Tx) error {
		for _, batch := range idBatches(ids) {
			in, args := inClause(batch)
			res, err := tx.Exec(`DELETE FROM entries WHERE id IN (`+in+`)`, args...)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			deleted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// maxIDsPerQuery keeps IN lists well under SQLite's bound-parameter limit.
const maxIDsPerQuery = 500

func idBatches(ids []string) [][]string {
	var batches [][]string
	for len(ids) > maxIDsPerQuery {
		batches = append(batches, ids[:maxIDsPerQuery])
		ids = ids[maxIDsPerQuery:]
	}
	if len(ids) > 0 {
		batches = append(batches, ids)
	}
	return batches
}

// inClause returns "?,?,..." for ids and the matching arguments.
func inClause(ids []string) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

// likeEscaper makes user text match literally inside a LIKE pattern with ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// FindByURL returns the first entry collected from url.
func (s *Store) FindByURL(url string) (Entry, error) {
	if url == "" {
		return Entry{}, ErrNotFound
	}
	e, err := scanEntry(s.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE source_url = ? ORDER BY created_at ASC LIMIT 1`, url))
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (s *Store) CountEntries() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n)
	return n, err
}

// Categories returns the distinct categories in use, sorted.
func (s *Store) Categories() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT category FROM entries ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Tags returns the distinct tags across all entries, sorted.
func (s *Store) Tags() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT tags FROM entries WHERE tags != '[]'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var tags []string
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			continue
		}
		for _, t := range tags {
			set[t] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Stats() (Stats, error) {
	st := Stats{ByType: make(map[string]int)}
	if err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(word_count), 0), COUNT(quality_score) FROM entries`).
		Scan(&st.TotalEntries, &st.TotalWords, &st.Scored); err != nil {
		return Stats{}, fmt.Errorf("counting entries: %w", err)
	}

	rows, err := s.db.Query(`SELECT source_type, COUNT(*) FROM entries GROUP BY source_type`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return Stats{}, err
		}
		st.ByType[t] = n
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM export_history`).Scan(&st.TotalExports); err != nil {
		return Stats{}, fmt.Errorf("counting exports: %w", err)
	}
	return st, nil
}
