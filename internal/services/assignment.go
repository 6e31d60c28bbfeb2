package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/vbs/internal/grading"
	"github.com/lojf/vbs/internal/models"
)

type AssignmentService struct {
	db  *gorm.DB
	log *zap.Logger

	mu     sync.RWMutex
	scheme grading.Scheme
}

func NewAssignmentService(db *gorm.DB, scheme grading.Scheme, log *zap.Logger) *AssignmentService {
	return &AssignmentService{db: db, scheme: scheme, log: log.Named("assignment")}
}

func (s *AssignmentService) Scheme() grading.Scheme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scheme
}

// SetScheme swaps the grade scheme used by later runs. Runs already in flight
// keep the one they started with.
func (s *AssignmentService) SetScheme(scheme grading.Scheme) {
	s.mu.Lock()
	s.scheme = scheme
	s.mu.Unlock()
}

// paidRegistrationIDs is a subquery; only children of paid registrations are
// on the board.
func paidRegistrationIDs(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.Registration{}).Select("id").Where("status = ?", models.StatusPaid)
}

func boardChildrenTx(tx *gorm.DB) ([]models.Child, error) {
	var kids []models.Child
	err := tx.Where("registration_id IN (?)", paidRegistrationIDs(tx)).
		Order("id asc").
		Find(&kids).Error
	return kids, errors.Wrap(err, "load board children")
}

func orderedGroupsTx(tx *gorm.DB) ([]models.Group, error) {
	var groups []models.Group
	err := tx.Order("sort_order asc, id asc").Find(&groups).Error
	return groups, errors.Wrap(err, "load groups")
}

// AutoAssign replaces every group assignment with the grade-based one, in a
// single transaction. On failure all children keep their previous group.
func (s *AssignmentService) AutoAssign(ctx context.Context) (grading.Assignment, error) {
	start := time.Now()
	var result grading.Assignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.AutoAssignTx(tx)
		return err
	})
	autoAssignDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		autoAssignTotal.WithLabelValues("error").Inc()
		s.log.Error("auto-assign failed", zap.Error(err))
		return nil, errors.Wrap(err, "auto-assign")
	}
	autoAssignTotal.WithLabelValues("ok").Inc()

	groups, unassigned := result.ByGroup()
	s.log.Info("auto-assign complete",
		zap.Int("children", len(result)),
		zap.Int("groups_used", len(groups)),
		zap.Int("unassigned", len(unassigned)),
	)
	return result, nil
}

// AutoAssignTx does the same as AutoAssign but inside an existing TX.
func (s *AssignmentService) AutoAssignTx(tx *gorm.DB) (grading.Assignment, error) {
	groups, err := orderedGroupsTx(tx)
	if err != nil {
		return nil, err
	}
	kids, err := boardChildrenTx(tx)
	if err != nil {
		return nil, err
	}

	groupIDs := make([]uint, len(groups))
	for i, g := range groups {
		groupIDs[i] = g.ID
	}
	roster := make([]grading.ChildGrade, len(kids))
	for i, k := range kids {
		roster[i] = grading.ChildGrade{ChildID: k.ID, Grade: k.Grade}
	}
	result := grading.AutoAssign(roster, groupIDs, s.Scheme())

	// full replace: nothing from a previous run may survive
	if err := tx.Model(&models.Child{}).
		Where("group_id IS NOT NULL").
		Update("group_id", nil).Error; err != nil {
		return nil, errors.Wrap(err, "clear assignments")
	}
	byGroup, _ := result.ByGroup()
	if err := applyGroupsTx(tx, byGroup); err != nil {
		return nil, err
	}
	return result, nil
}

func applyGroupsTx(tx *gorm.DB, byGroup map[uint][]uint) error {
	gids := make([]uint, 0, len(byGroup))
	for gid := range byGroup {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })

	for _, gid := range gids {
		if err := tx.Model(&models.Child{}).
			Where("id IN ?", byGroup[gid]).
			Update("group_id", gid).Error; err != nil {
			return errors.Wrapf(err, "assign group %d", gid)
		}
	}
	return nil
}

// SaveAssignments applies an explicit child -> group mapping from the board.
// Board children missing from the mapping become unassigned. Unknown child or
// group ids reject the whole call with an *AssignmentError before any write.
func (s *AssignmentService) SaveAssignments(ctx context.Context, assignments map[uint]*uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var childIDs, groupIDs []uint
		if err := tx.Model(&models.Child{}).
			Where("registration_id IN (?)", paidRegistrationIDs(tx)).
			Pluck("id", &childIDs).Error; err != nil {
			return errors.Wrap(err, "load board children")
		}
		if err := tx.Model(&models.Group{}).Pluck("id", &groupIDs).Error; err != nil {
			return errors.Wrap(err, "load groups")
		}
		validChild := toSet(childIDs)
		knownGroup := toSet(groupIDs)

		verr := &AssignmentError{}
		badGroup := map[uint]bool{}
		for cid, gid := range assignments {
			if !validChild[cid] {
				verr.UnknownChildIDs = append(verr.UnknownChildIDs, cid)
			}
			if gid != nil && !knownGroup[*gid] && !badGroup[*gid] {
				badGroup[*gid] = true
				verr.UnknownGroupIDs = append(verr.UnknownGroupIDs, *gid)
			}
		}
		if !verr.empty() {
			sortIDs(verr.UnknownChildIDs)
			sortIDs(verr.UnknownGroupIDs)
			return verr
		}

		byGroup := map[uint][]uint{}
		var unassigned []uint
		for _, cid := range childIDs {
			if gid := assignments[cid]; gid != nil {
				byGroup[*gid] = append(byGroup[*gid], cid)
			} else {
				unassigned = append(unassigned, cid)
			}
		}
		if len(unassigned) > 0 {
			if err := tx.Model(&models.Child{}).
				Where("id IN ?", unassigned).
				Update("group_id", nil).Error; err != nil {
				return errors.Wrap(err, "unassign children")
			}
		}
		return applyGroupsTx(tx, byGroup)
	})

	switch {
	case err == nil:
		assignmentsSavedTotal.WithLabelValues("ok").Inc()
		s.log.Info("assignments saved", zap.Int("entries", len(assignments)))
		return nil
	case IsValidation(err):
		assignmentsSavedTotal.WithLabelValues("rejected").Inc()
		s.log.Warn("assignments rejected", zap.Error(err))
		return err
	default:
		assignmentsSavedTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "save assignments")
	}
}

// BoardChild is a child card on the group board.
type BoardChild struct {
	ID          uint   `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Age         *int   `json:"age"`
	DateOfBirth string `json:"date_of_birth"`
	Grade       string `json:"grade"`
	GradeLabel  string `json:"grade_label"` // normalized
	HomeChurch  bool   `json:"home_church"`
	GroupID     *uint  `json:"group_id"`
}

func (c BoardChild) display() grading.DisplayChild {
	return grading.DisplayChild{
		ID: c.ID, FirstName: c.FirstName, LastName: c.LastName,
		Age: c.Age, DateOfBirth: c.DateOfBirth, Grade: c.Grade,
	}
}

type BoardGroup struct {
	ID         uint               `json:"id"`
	Name       string             `json:"name"`
	SortOrder  int                `json:"sort_order"`
	Children   []BoardChild       `json:"children"`
	Volunteers []models.Volunteer `json:"volunteers"`
}

type Board struct {
	Grades     []string     `json:"grades"` // extended order for this roster
	Groups     []BoardGroup `json:"groups"`
	Unassigned []BoardChild `json:"unassigned"`
}

// Board loads the group board. Lists are ordered for display only.
func (s *AssignmentService) Board(ctx context.Context) (*Board, error) {
	tx := s.db.WithContext(ctx)
	groups, err := orderedGroupsTx(tx)
	if err != nil {
		return nil, err
	}
	kids, err := boardChildrenTx(tx)
	if err != nil {
		return nil, err
	}
	var vols []models.Volunteer
	if err := tx.Where("group_id IS NOT NULL").Order("name asc").Find(&vols).Error; err != nil {
		return nil, errors.Wrap(err, "load volunteers")
	}

	b := &Board{Groups: make([]BoardGroup, len(groups)), Unassigned: []BoardChild{}}
	pos := make(map[uint]int, len(groups))
	for i, g := range groups {
		b.Groups[i] = BoardGroup{ID: g.ID, Name: g.Name, SortOrder: g.SortOrder, Children: []BoardChild{}, Volunteers: []models.Volunteer{}}
		pos[g.ID] = i
	}
	for _, v := range vols {
		if i, ok := pos[*v.GroupID]; ok {
			b.Groups[i].Volunteers = append(b.Groups[i].Volunteers, v)
		}
	}

	scheme := s.Scheme()
	norm := make([]string, 0, len(kids))
	for _, k := range kids {
		label := scheme.Normalize(k.Grade)
		norm = append(norm, label)
		bc := BoardChild{
			ID: k.ID, FirstName: k.FirstName, LastName: k.LastName, Age: k.Age,
			DateOfBirth: k.DateOfBirth, Grade: k.Grade, GradeLabel: label,
			HomeChurch: k.HomeChurch, GroupID: k.GroupID,
		}
		if k.GroupID != nil {
			if i, ok := pos[*k.GroupID]; ok {
				b.Groups[i].Children = append(b.Groups[i].Children, bc)
				continue
			}
		}
		bc.GroupID = nil
		b.Unassigned = append(b.Unassigned, bc)
	}
	b.Grades = scheme.Extended(norm)

	sortBoard(b.Unassigned)
	for i := range b.Groups {
		sortBoard(b.Groups[i].Children)
	}
	return b, nil
}

func sortBoard(cs []BoardChild) {
	sort.SliceStable(cs, func(i, j int) bool {
		return grading.LessForDisplay(cs[i].display(), cs[j].display())
	})
}

// ---------- groups ----------

func (s *AssignmentService) Groups(ctx context.Context) ([]models.Group, error) {
	return orderedGroupsTx(s.db.WithContext(ctx))
}

func cleanGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewValidationError(errors.New("group name required"), FieldError{Field: "name", Error: "required"})
	}
	return name, nil
}

// CreateGroup appends a group at the end of the display order.
func (s *AssignmentService) CreateGroup(ctx context.Context, name string) (*models.Group, error) {
	name, err := cleanGroupName(name)
	if err != nil {
		return nil, err
	}
	g := models.Group{Name: name}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		if err := tx.Model(&models.Group{}).Select("COALESCE(MAX(sort_order), -1)").Scan(&maxOrder).Error; err != nil {
			return err
		}
		g.SortOrder = maxOrder + 1
		return tx.Create(&g).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "create group")
	}
	return &g, nil
}

func (s *AssignmentService) RenameGroup(ctx context.Context, id uint, name string) error {
	name, err := cleanGroupName(name)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "rename group %d", id)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderGroups sets the display order to the order of ids. Every existing
// group must be listed exactly once.
func (s *AssignmentService) ReorderGroups(ctx context.Context, ids []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []uint
		if err := tx.Model(&models.Group{}).Pluck("id", &existing).Error; err != nil {
			return errors.Wrap(err, "load groups")
		}
		known := toSet(existing)
		seen := map[uint]bool{}
		verr := &AssignmentError{}
		var dups []FieldError
		for _, id := range ids {
			switch {
			case !known[id]:
				verr.UnknownGroupIDs = append(verr.UnknownGroupIDs, id)
			case seen[id]:
				dups = append(dups, FieldError{Field: "ids", Error: fmt.Sprintf("group %d listed more than once", id)})
			}
			seen[id] = true
		}
		if !verr.empty() {
			return verr
		}
		if len(dups) > 0 {
			return NewValidationError(errors.New("reorder lists a group twice"), dups...)
		}
		if len(seen) != len(existing) {
			return NewValidationError(errors.New("reorder must list every group"),
				FieldError{Field: "ids", Error: "incomplete"})
		}
		for i, id := range ids {
			if err := tx.Model(&models.Group{}).Where("id = ?", id).Update("sort_order", i).Error; err != nil {
				return errors.Wrapf(err, "reorder group %d", id)
			}
		}
		return nil
	})
}

// DeleteGroup removes a group; its children and volunteers become unassigned.
func (s *AssignmentService) DeleteGroup(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g models.Group
		if err := tx.First(&g, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Model(&models.Child{}).Where("group_id = ?", id).Update("group_id", nil).Error; err != nil {
			return errors.Wrap(err, "unassign children")
		}
		if err := tx.Model(&models.Volunteer{}).Where("group_id = ?", id).Update("group_id", nil).Error; err != nil {
			return errors.Wrap(err, "unassign volunteers")
		}
		return errors.Wrap(tx.Delete(&g).Error, "delete group")
	})
}

func toSet(ids []uint) map[uint]bool {
	m := make(map[uint]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func sortIDs(ids []uint) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
