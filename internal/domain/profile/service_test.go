package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService(NewDoctorMemoryRepo(), NewPatientMemoryRepo())
}

func TestUpsertDoctor(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	fee := 40.0

	d := &Doctor{ID: "doc-1", FullName: "  Meredith Grey ", Specialty: "Surgery", Fee: &fee}
	require.NoError(t, svc.UpsertDoctor(ctx, d))
	created := d.CreatedAt

	got, err := svc.GetDoctor(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Meredith Grey", got.FullName)

	d2 := &Doctor{ID: "doc-1", FullName: "Meredith Grey", Specialty: "General Surgery"}
	require.NoError(t, svc.UpsertDoctor(ctx, d2))
	assert.Equal(t, created, d2.CreatedAt)
	got, _ = svc.GetDoctor(ctx, "doc-1")
	assert.Equal(t, "General Surgery", got.Specialty)
}

func TestUpsertDoctor_Validation(t *testing.T) {
	svc := newTestService()
	neg := -1.0
	tests := []struct {
		name string
		d    Doctor
	}{
		{"missing id", Doctor{FullName: "A"}},
		{"missing name", Doctor{ID: "doc-1", FullName: "   "}},
		{"negative fee", Doctor{ID: "doc-1", FullName: "A", Fee: &neg}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.d
			assert.ErrorIs(t, svc.UpsertDoctor(context.Background(), &d), ErrValidation)
		})
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.GetPatient(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDoctors_SpecialtyFilter(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	require.NoError(t, svc.UpsertDoctor(ctx, &Doctor{ID: "d1", FullName: "Cristina Yang", Specialty: "Cardiology"}))
	require.NoError(t, svc.UpsertDoctor(ctx, &Doctor{ID: "d2", FullName: "Alex Karev", Specialty: "Pediatrics"}))
	require.NoError(t, svc.UpsertDoctor(ctx, &Doctor{ID: "d3", FullName: "Preston Burke", Specialty: "cardiology"}))

	items, total, err := svc.ListDoctors(ctx, "Cardiology", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "Cristina Yang", items[0].FullName)
	assert.Equal(t, "Preston Burke", items[1].FullName)

	_, total, err = svc.ListDoctors(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}

type brokenDoctors struct{ DoctorRepository }

func (brokenDoctors) GetMany(context.Context, []string) ([]*Doctor, error) {
	return nil, errors.New("connection refused")
}

func TestDirectory_ResolvesNames(t *testing.T) {
	doctors := NewDoctorMemoryRepo()
	patients := NewPatientMemoryRepo()
	ctx := context.Background()
	require.NoError(t, doctors.Upsert(ctx, &Doctor{ID: "doc-1", FullName: "Meredith Grey"}))
	require.NoError(t, patients.Upsert(ctx, &Patient{ID: "pat-1", FullName: "Izzie Stevens"}))

	dir := NewDirectory(doctors, patients)

	names, err := dir.DoctorNames(ctx, []string{"doc-1", "doc-missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"doc-1": "Meredith Grey"}, names)

	names, err = dir.PatientNames(ctx, []string{"pat-1"})
	require.NoError(t, err)
	assert.Equal(t, "Izzie Stevens", names["pat-1"])

	names, err = dir.PatientNames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDirectory_SeesUpdatedNames(t *testing.T) {
	doctors := NewDoctorMemoryRepo()
	ctx := context.Background()
	require.NoError(t, doctors.Upsert(ctx, &Doctor{ID: "doc-1", FullName: "Meredith Grey"}))
	dir := NewDirectory(doctors, NewPatientMemoryRepo())

	_, err := dir.DoctorNames(ctx, []string{"doc-1"})
	require.NoError(t, err)
	require.NoError(t, doctors.Upsert(ctx, &Doctor{ID: "doc-1", FullName: "Meredith Shepherd"}))

	names, err := dir.DoctorNames(ctx, []string{"doc-1"})
	require.NoError(t, err)
	assert.Equal(t, "Meredith Shepherd", names["doc-1"])
}

func TestDirectory_RepositoryFailure(t *testing.T) {
	dir := NewDirectory(brokenDoctors{}, NewPatientMemoryRepo())
	_, err := dir.DoctorNames(context.Background(), []string{"doc-1"})
	assert.Error(t, err)
}
