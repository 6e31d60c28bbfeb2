package services

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/lojf/vbs/internal/grading"
	"github.com/lojf/vbs/internal/models"
)

func uptr(v uint) *uint { return &v }

func TestAutoAssign_PaidChildrenByGrade(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "Kinder", "First")
	paid := seedRegistration(t, conn, models.StatusPaid, "K", "1st")
	draft := seedRegistration(t, conn, models.StatusDraft, "K")

	svc := NewAssignmentService(conn, grading.NewScheme([]string{"K", "1st"}, nil), zap.NewNop())
	got, err := svc.AutoAssign(ctx)
	require.NoError(t, err)

	want := grading.Assignment{
		paid.Children[0].ID: uptr(gs[0].ID),
		paid.Children[1].ID: uptr(gs[1].ID),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("assignment mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, gs[0].ID, *groupOf(t, conn, paid.Children[0].ID))
	assert.Equal(t, gs[1].ID, *groupOf(t, conn, paid.Children[1].ID))
	assert.Nil(t, groupOf(t, conn, draft.Children[0].ID), "draft children stay off the board")
}

func TestAutoAssign_UsesDisplayOrderNotID(t *testing.T) {
	conn := newTestDB(t)
	gs := seedGroups(t, conn, "Second", "First")
	// swap display order so the higher id comes first
	require.NoError(t, conn.Model(&gs[0]).Update("sort_order", 5).Error)
	reg := seedRegistration(t, conn, models.StatusPaid, "K")

	svc := NewAssignmentService(conn, grading.NewScheme([]string{"K", "1st"}, nil), zap.NewNop())
	_, err := svc.AutoAssign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, gs[1].ID, *groupOf(t, conn, reg.Children[0].ID))
}

func TestAutoAssign_FullReplace(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "Preschool", "PreK")
	reg := seedRegistration(t, conn, models.StatusPaid, "Pre K", "Preschool")
	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())

	_, err := svc.AutoAssign(ctx)
	require.NoError(t, err)
	require.Equal(t, gs[1].ID, *groupOf(t, conn, reg.Children[0].ID))

	// the first child moves out of range; a stale manual move must not survive either
	require.NoError(t, conn.Model(&models.Child{}).Where("id = ?", reg.Children[0].ID).Update("grade", "3rd").Error)
	require.NoError(t, conn.Model(&models.Child{}).Where("id = ?", reg.Children[1].ID).Update("group_id", gs[1].ID).Error)

	_, err = svc.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Nil(t, groupOf(t, conn, reg.Children[0].ID))
	assert.Equal(t, gs[0].ID, *groupOf(t, conn, reg.Children[1].ID))
}

func TestSaveAssignments_ValidationPrecedesMutation(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "A")
	reg := seedRegistration(t, conn, models.StatusPaid, "K", "K", "K", "K", "K", "K", "K", "K", "K")
	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())

	m := map[uint]*uint{}
	for _, c := range reg.Children {
		m[c.ID] = uptr(gs[0].ID)
	}
	m[9999] = uptr(gs[0].ID)

	err := svc.SaveAssignments(ctx, m)
	require.Error(t, err)
	var aerr *AssignmentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []uint{9999}, aerr.UnknownChildIDs)
	assert.Empty(t, aerr.UnknownGroupIDs)
	assert.True(t, IsValidation(err))

	for _, c := range reg.Children {
		assert.Nil(t, groupOf(t, conn, c.ID), "child %d written despite rejection", c.ID)
	}
}

func TestSaveAssignments_ListsUnknownGroupsAndChildren(t *testing.T) {
	conn := newTestDB(t)
	gs := seedGroups(t, conn, "A")
	paid := seedRegistration(t, conn, models.StatusPaid, "K")
	draft := seedRegistration(t, conn, models.StatusDraft, "K")
	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())

	err := svc.SaveAssignments(context.Background(), map[uint]*uint{
		paid.Children[0].ID:  uptr(777),
		draft.Children[0].ID: uptr(gs[0].ID),
	})
	var aerr *AssignmentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []uint{draft.Children[0].ID}, aerr.UnknownChildIDs)
	assert.Equal(t, []uint{777}, aerr.UnknownGroupIDs)
	assert.Contains(t, err.Error(), "777")
}

func TestSaveAssignments_AbsentChildrenUnassigned(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "A", "B")
	reg := seedRegistration(t, conn, models.StatusPaid, "K", "1st", "2nd")
	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())

	require.NoError(t, conn.Model(&models.Child{}).Where("registration_id = ?", reg.ID).Update("group_id", gs[0].ID).Error)

	err := svc.SaveAssignments(ctx, map[uint]*uint{
		reg.Children[0].ID: uptr(gs[1].ID),
		reg.Children[1].ID: nil,
	})
	require.NoError(t, err)
	assert.Equal(t, gs[1].ID, *groupOf(t, conn, reg.Children[0].ID))
	assert.Nil(t, groupOf(t, conn, reg.Children[1].ID))
	assert.Nil(t, groupOf(t, conn, reg.Children[2].ID))
}

func TestBoard(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "Kinder")
	reg := seedRegistration(t, conn, models.StatusPaid, "Zebra", "kindergarten", "")
	seedRegistration(t, conn, models.StatusDraft, "K")
	require.NoError(t, conn.Create(&models.Volunteer{Name: "Leader", GroupID: &gs[0].ID}).Error)

	scheme := grading.NewScheme([]string{"K"}, map[string]string{"kindergarten": "K"})
	svc := NewAssignmentService(conn, scheme, zap.NewNop())
	_, err := svc.AutoAssign(ctx)
	require.NoError(t, err)

	b, err := svc.Board(ctx)
	require.NoError(t, err)
	require.Len(t, b.Groups, 1)

	kinder := b.Groups[0]
	require.Len(t, kinder.Children, 1)
	assert.Equal(t, reg.Children[1].ID, kinder.Children[0].ID)
	assert.Equal(t, "K", kinder.Children[0].GradeLabel)
	require.Len(t, kinder.Volunteers, 1)

	assert.Len(t, b.Unassigned, 2)
	assert.Equal(t, []string{"K", "Zebra"}, b.Grades)
}

func TestGroups_CreateRenameReorder(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())

	a, err := svc.CreateGroup(ctx, " Lions ")
	require.NoError(t, err)
	b, err := svc.CreateGroup(ctx, "Bears")
	require.NoError(t, err)
	assert.Equal(t, "Lions", a.Name)
	assert.Equal(t, a.SortOrder+1, b.SortOrder)

	_, err = svc.CreateGroup(ctx, "   ")
	assert.True(t, IsValidation(err))

	require.NoError(t, svc.RenameGroup(ctx, a.ID, "Tigers"))
	assert.True(t, IsNotFound(svc.RenameGroup(ctx, 404, "x")))

	require.NoError(t, svc.ReorderGroups(ctx, []uint{b.ID, a.ID}))
	gs, err := svc.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, gs, 2)
	assert.Equal(t, []string{"Bears", "Tigers"}, []string{gs[0].Name, gs[1].Name})

	assert.True(t, IsValidation(svc.ReorderGroups(ctx, []uint{b.ID})))
	assert.True(t, IsValidation(svc.ReorderGroups(ctx, []uint{b.ID, a.ID, 99})))
}

func TestReorderGroups_DuplicateIsNotUnknown(t *testing.T) {
	conn := newTestDB(t)
	gs := seedGroups(t, conn, "A", "B")
	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())

	err := svc.ReorderGroups(context.Background(), []uint{gs[0].ID, gs[0].ID, gs[1].ID})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %T", err)
	want := []FieldError{{Field: "ids", Error: "group " + strconv.FormatUint(uint64(gs[0].ID), 10) + " listed more than once"}}
	if diff := cmp.Diff(want, verr.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}

	var aerr *AssignmentError
	assert.False(t, errors.As(err, &aerr))

	list, err := svc.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, []string{list[0].Name, list[1].Name})
}

func TestDeleteGroup_UnassignsMembers(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "A", "B")
	reg := seedRegistration(t, conn, models.StatusPaid, "K", "1st")
	require.NoError(t, conn.Model(&models.Child{}).Where("id = ?", reg.Children[0].ID).Update("group_id", gs[0].ID).Error)
	require.NoError(t, conn.Model(&models.Child{}).Where("id = ?", reg.Children[1].ID).Update("group_id", gs[1].ID).Error)
	vol := models.Volunteer{Name: "Helper", GroupID: &gs[0].ID}
	require.NoError(t, conn.Create(&vol).Error)

	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())
	require.NoError(t, svc.DeleteGroup(ctx, gs[0].ID))

	assert.Nil(t, groupOf(t, conn, reg.Children[0].ID))
	assert.Equal(t, gs[1].ID, *groupOf(t, conn, reg.Children[1].ID))
	var v models.Volunteer
	require.NoError(t, conn.First(&v, vol.ID).Error)
	assert.Nil(t, v.GroupID)

	assert.True(t, IsNotFound(svc.DeleteGroup(ctx, gs[0].ID)))
}

func TestSetScheme_AppliesToLaterRuns(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "A", "B")
	reg := seedRegistration(t, conn, models.StatusPaid, "Tots", "K")

	svc := NewAssignmentService(conn, grading.NewScheme([]string{"K"}, nil), zap.NewNop())
	_, err := svc.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, gs[1].ID, *groupOf(t, conn, reg.Children[0].ID), "unknown grade sorts after K")

	svc.SetScheme(grading.NewScheme([]string{"Tots", "K"}, nil))
	_, err = svc.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, gs[0].ID, *groupOf(t, conn, reg.Children[0].ID))
	assert.Equal(t, gs[1].ID, *groupOf(t, conn, reg.Children[1].ID))
}

// failNthChildUpdate makes the nth UPDATE on children fail from now on.
func failNthChildUpdate(t *testing.T, conn *gorm.DB, n int) {
	t.Helper()
	var seen int
	err := conn.Callback().Update().Before("gorm:update").Register("test:fail_child_update", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || tx.Statement.Schema.Name != "Child" {
			return
		}
		seen++
		if seen == n {
			_ = tx.AddError(errors.New("boom"))
		}
	})
	require.NoError(t, err)
}

func setGroup(t *testing.T, conn *gorm.DB, childID, groupID uint) {
	t.Helper()
	require.NoError(t, conn.Model(&models.Child{}).Where("id = ?", childID).Update("group_id", groupID).Error)
}

func TestAutoAssign_StorageFailureKeepsPreviousGroups(t *testing.T) {
	conn := newTestDB(t)
	gs := seedGroups(t, conn, "Kinder", "First")
	reg := seedRegistration(t, conn, models.StatusPaid, "K", "1st")
	// start from the opposite of what auto-assign would produce
	setGroup(t, conn, reg.Children[0].ID, gs[1].ID)
	setGroup(t, conn, reg.Children[1].ID, gs[0].ID)

	// clear, first group, then fail on the second group
	failNthChildUpdate(t, conn, 3)

	svc := NewAssignmentService(conn, grading.NewScheme([]string{"K", "1st"}, nil), zap.NewNop())
	_, err := svc.AutoAssign(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, gs[1].ID, *groupOf(t, conn, reg.Children[0].ID))
	assert.Equal(t, gs[0].ID, *groupOf(t, conn, reg.Children[1].ID))
}

func TestSaveAssignments_StorageFailureKeepsPreviousGroups(t *testing.T) {
	conn := newTestDB(t)
	gs := seedGroups(t, conn, "A", "B")
	reg := seedRegistration(t, conn, models.StatusPaid, "K", "K", "K")
	c0, c1, c2 := reg.Children[0].ID, reg.Children[1].ID, reg.Children[2].ID
	setGroup(t, conn, c0, gs[0].ID)
	setGroup(t, conn, c1, gs[1].ID)
	setGroup(t, conn, c2, gs[0].ID)

	// unassign c2, move c1 to A, then fail moving c0 to B
	failNthChildUpdate(t, conn, 3)

	svc := NewAssignmentService(conn, grading.DefaultScheme(), zap.NewNop())
	err := svc.SaveAssignments(context.Background(), map[uint]*uint{
		c0: uptr(gs[1].ID),
		c1: uptr(gs[0].ID),
	})
	require.Error(t, err)
	assert.False(t, IsValidation(err))
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, gs[0].ID, *groupOf(t, conn, c0))
	assert.Equal(t, gs[1].ID, *groupOf(t, conn, c1))
	assert.Equal(t, gs[0].ID, *groupOf(t, conn, c2))
}
