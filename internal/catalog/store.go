package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Workbook header names are part of the catalog file contract.
const (
	ColCommunityID        = "CommunityID"
	ColCommunityName      = "Community Name"
	ColCareLevel          = "Care Level"
	ColMonthlyFee         = "Monthly Fee"
	ColZIP                = "ZIP"
	ColWorksWithPlacement = "Work with Placement?"
	ColContractRate       = "Contract Rate"
	ColWaitlist           = "Est. Waitlist"
	ColEnhanced           = "Enhanced"
	ColEnriched           = "Enriched"
	ColDeposit            = "Deposit"
	ColMoveInFee          = "Move-In Fee"
	ColCommunityFee       = "Community Fee - One Time"
	ColPetFee             = "Pet Fee"
	ColSecondPersonFee    = "2nd Person Fee"
	ColApartmentType      = "Apartment Type"
)

var requiredColumns = map[string]bool{
	ColCommunityID:        true,
	ColCommunityName:      true,
	ColCareLevel:          true,
	ColMonthlyFee:         true,
	ColZIP:                true,
	ColWorksWithPlacement: true,
	ColContractRate:       true,
	ColWaitlist:           true,
	ColEnhanced:           true,
	ColEnriched:           true,
	ColDeposit:            true,
	ColMoveInFee:          true,
	ColCommunityFee:       true,
	ColPetFee:             true,
	ColSecondPersonFee:    true,
	ColApartmentType:      true,
}

// columnOrder fixes the layout used when the workbook is written back.
var columnOrder = []string{
	ColCommunityID, ColCommunityName, ColCareLevel, ColMonthlyFee, ColZIP,
	ColWorksWithPlacement, ColContractRate, ColWaitlist, ColEnhanced,
	ColEnriched, ColDeposit, ColMoveInFee, ColCommunityFee, ColPetFee,
	ColSecondPersonFee, ColApartmentType,
}

// Snapshot is an immutable view of the catalog. A consultation holds one
// snapshot for its whole lifetime; mutations on the Store publish new ones.
type Snapshot struct {
	list  []Community
	index map[int]int
}

// All returns the communities in load order. Callers must not mutate the
// returned slice.
func (s *Snapshot) All() []Community { return s.list }

func (s *Snapshot) Len() int { return len(s.list) }

func (s *Snapshot) Get(id int) (Community, bool) {
	i, ok := s.index[id]
	if !ok {
		return Community{}, false
	}
	return s.list[i], true
}

// Store owns the catalog. Reads go through copy-on-write snapshots; writers
// serialize on the mutex and re-normalize only the touched row.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger
	snap   *Snapshot
}

// Load reads the first sheet of the workbook, normalizes every row and skips
// the malformed ones with a log line each.
func Load(path string, logger *zap.Logger) (*Store, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("catalog workbook %q has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read catalog sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("catalog sheet %q is empty", sheets[0])
	}

	header := rows[0]
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		seen[h] = true
	}
	for col := range requiredColumns {
		if col == ColCommunityName {
			continue
		}
		if !seen[col] {
			return nil, fmt.Errorf("catalog sheet is missing column %q", col)
		}
	}

	store := &Store{logger: logger, snap: &Snapshot{index: map[int]int{}}}

	skipped := 0
	for i, row := range rows[1:] {
		raw := make(map[string]string, len(header))
		for j, col := range header {
			if j < len(row) {
				raw[col] = row[j]
			}
		}

		c, err := normalizeRow(raw)
		if err != nil {
			skipped++
			logger.Warn("skipping malformed catalog row",
				zap.Int("row", i+2),
				zap.Error(err),
			)
			continue
		}

		if _, dup := store.snap.index[c.ID]; dup {
			skipped++
			logger.Warn("skipping duplicate community id",
				zap.Int("row", i+2),
				zap.Int("community_id", c.ID),
			)
			continue
		}

		store.snap.index[c.ID] = len(store.snap.list)
		store.snap.list = append(store.snap.list, c)
	}

	logger.Info("catalog loaded",
		zap.String("file", path),
		zap.Int("communities", len(store.snap.list)),
		zap.Int("skipped", skipped),
	)

	return store, nil
}

// NewFromCommunities builds a store from already-normalized rows. Used by
// tests and by callers that assemble catalogs programmatically.
func NewFromCommunities(communities []Community, logger *zap.Logger) *Store {
	snap := &Snapshot{index: make(map[int]int, len(communities))}
	for _, c := range communities {
		if _, dup := snap.index[c.ID]; dup {
			continue
		}
		snap.index[c.ID] = len(snap.list)
		snap.list = append(snap.list, c)
	}
	return &Store{logger: logger, snap: snap}
}

// Snapshot returns the current immutable view.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Upsert inserts or replaces one community. Fields arrive as workbook-style
// raw strings so the same normalization path runs for loads and mutations.
func (s *Store) Upsert(id int, fields map[string]string) (Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := map[string]string{ColCommunityID: strconv.Itoa(id)}
	if i, ok := s.snap.index[id]; ok {
		for col, val := range rowToRaw(s.snap.list[i]) {
			raw[col] = val
		}
	}
	for col, val := range fields {
		if col == ColCommunityID {
			continue
		}
		raw[col] = val
	}

	c, err := normalizeRow(raw)
	if err != nil {
		return Community{}, err
	}

	next := s.cloneLocked()
	if i, ok := next.index[id]; ok {
		next.list[i] = c
	} else {
		next.index[id] = len(next.list)
		next.list = append(next.list, c)
	}
	s.snap = next

	s.logger.Info("catalog row upserted", zap.Int("community_id", id))
	return c, nil
}

// Delete removes one community. Returns false when the id is unknown.
func (s *Store) Delete(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.snap.index[id]
	if !ok {
		return false
	}

	next := &Snapshot{
		list:  make([]Community, 0, len(s.snap.list)-1),
		index: make(map[int]int, len(s.snap.list)-1),
	}
	for j, c := range s.snap.list {
		if j == i {
			continue
		}
		next.index[c.ID] = len(next.list)
		next.list = append(next.list, c)
	}
	s.snap = next

	s.logger.Info("catalog row deleted", zap.Int("community_id", id))
	return true
}

func (s *Store) cloneLocked() *Snapshot {
	next := &Snapshot{
		list:  make([]Community, len(s.snap.list)),
		index: make(map[int]int, len(s.snap.index)),
	}
	copy(next.list, s.snap.list)
	for id, i := range s.snap.index {
		next.index[id] = i
	}
	return next
}

// Stats summarizes the current snapshot for the /api/stats surface.
type Stats struct {
	Total          int            `json:"total_communities"`
	ByCareLevel    map[string]int `json:"by_care_level"`
	AvailableNow   int            `json:"available_now"`
	PlacementCount int            `json:"placement_partners"`
	MinMonthlyFee  float64        `json:"min_monthly_fee"`
	AvgMonthlyFee  float64        `json:"avg_monthly_fee"`
	MaxMonthlyFee  float64        `json:"max_monthly_fee"`
}

func (s *Store) Stats() Stats {
	snap := s.Snapshot()
	stats := Stats{ByCareLevel: map[string]int{}}
	stats.Total = snap.Len()

	var sum float64
	for i, c := range snap.All() {
		stats.ByCareLevel[c.CareLevel]++
		if c.AvailabilityScore == 0 {
			stats.AvailableNow++
		}
		if c.WorksWithPlacement {
			stats.PlacementCount++
		}
		sum += c.MonthlyFee
		if i == 0 || c.MonthlyFee < stats.MinMonthlyFee {
			stats.MinMonthlyFee = c.MonthlyFee
		}
		if c.MonthlyFee > stats.MaxMonthlyFee {
			stats.MaxMonthlyFee = c.MonthlyFee
		}
	}
	if stats.Total > 0 {
		stats.AvgMonthlyFee = sum / float64(stats.Total)
	}
	return stats
}

// Save writes the snapshot back as a workbook. Optional columns kept in
// Extra are appended after the contract columns in a stable order.
func (s *Store) Save(path string) error {
	snap := s.Snapshot()

	extraCols := map[string]bool{}
	for _, c := range snap.All() {
		for col := range c.Extra {
			extraCols[col] = true
		}
	}
	extras := make([]string, 0, len(extraCols))
	for col := range extraCols {
		extras = append(extras, col)
	}
	sort.Strings(extras)

	header := append(append([]string{}, columnOrder...), extras...)

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	headerRow := make([]interface{}, len(header))
	for i, col := range header {
		headerRow[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("write catalog header: %w", err)
	}

	for i, c := range snap.All() {
		raw := rowToRaw(c)
		row := make([]interface{}, len(header))
		for j, col := range header {
			row[j] = raw[col]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write catalog row %d: %w", i+2, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save catalog workbook: %w", err)
	}
	return nil
}

func rowToRaw(c Community) map[string]string {
	raw := map[string]string{
		ColCommunityID:        strconv.Itoa(c.ID),
		ColCommunityName:      c.Name,
		ColCareLevel:          c.CareLevel,
		ColMonthlyFee:         formatMoney(c.MonthlyFee),
		ColZIP:                c.ZIP,
		ColWorksWithPlacement: yesNo(c.WorksWithPlacement),
		ColContractRate:       strconv.FormatFloat(c.ContractRate, 'f', -1, 64),
		ColWaitlist:           c.WaitlistStatus,
		ColEnhanced:           yesNo(c.Enhanced),
		ColEnriched:           yesNo(c.Enriched),
		ColDeposit:            formatMoney(c.Upfront.Deposit),
		ColMoveInFee:          formatMoney(c.Upfront.MoveInFee),
		ColCommunityFee:       formatMoney(c.Upfront.CommunityFee),
		ColPetFee:             formatMoney(c.Upfront.PetFee),
		ColApartmentType:      c.ApartmentType,
	}
	if c.Upfront.SecondPersonFee != nil {
		raw[ColSecondPersonFee] = formatMoney(*c.Upfront.SecondPersonFee)
	}
	for col, val := range c.Extra {
		raw[col] = val
	}
	return raw
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
