package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestVolunteers_CRUD(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	gs := seedGroups(t, conn, "Lions")
	svc := NewVolunteerService(conn, zap.NewNop())

	v, err := svc.Create(ctx, VolunteerInput{Name: " Grace ", Email: "Grace@Example.org", Phone: "555 222 3333", Role: "leader", GroupID: &gs[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "Grace", v.Name)
	assert.Equal(t, "grace@example.org", v.Email)
	assert.Equal(t, "+15552223333", v.Phone)

	require.NoError(t, svc.Update(ctx, v.ID, VolunteerInput{Name: "Grace H", Role: "helper"}))
	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Grace H", list[0].Name)
	assert.Nil(t, list[0].GroupID)
	assert.Empty(t, list[0].Email)

	require.NoError(t, svc.Delete(ctx, v.ID))
	assert.True(t, IsNotFound(svc.Delete(ctx, v.ID)))
}

func TestVolunteers_Validation(t *testing.T) {
	conn := newTestDB(t)
	ctx := context.Background()
	svc := NewVolunteerService(conn, zap.NewNop())

	_, err := svc.Create(ctx, VolunteerInput{Name: "  "})
	assert.True(t, IsValidation(err))

	_, err = svc.Create(ctx, VolunteerInput{Name: "Sam", GroupID: uptr(31)})
	var aerr *AssignmentError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, []uint{31}, aerr.UnknownGroupIDs)

	assert.True(t, IsNotFound(svc.Update(ctx, 77, VolunteerInput{Name: "Nobody"})))
}
