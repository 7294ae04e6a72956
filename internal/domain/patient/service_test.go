package patient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cohortdesk/cohortdesk/internal/platform/apperr"
)

// -- Mocks --

type mockRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.patients[p.ID]; !ok {
		return fmt.Errorf("patient %s not found", p.ID)
	}
	p.UpdatedAt = time.Now()
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	return m.patients[id], nil
}

func (m *mockRepo) GetByDatasetAndKey(_ context.Context, datasetID uuid.UUID, key string) (*Patient, error) {
	for _, p := range m.patients {
		if p.DatasetID == datasetID && p.PatientKey == key {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	for _, p := range m.patients {
		if p.MRN != nil && *p.MRN == mrn {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockRepo) ListByDataset(ctx context.Context, datasetID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	return m.Search(ctx, datasetID, "", "", limit, offset)
}

func (m *mockRepo) ListAllByDataset(_ context.Context, datasetID uuid.UUID) ([]*Patient, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.DatasetID == datasetID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) ListAll(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) Search(_ context.Context, datasetID uuid.UUID, query, missingField string, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.DatasetID != datasetID {
			continue
		}
		if missingField != "" && !p.FieldEmpty(missingField) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *mockRepo) CountByDataset(_ context.Context, datasetID uuid.UUID) (int, error) {
	n := 0
	for _, p := range m.patients {
		if p.DatasetID == datasetID {
			n++
		}
	}
	return n, nil
}

type mockDatasets struct {
	ids map[uuid.UUID]bool
}

func (m *mockDatasets) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.ids[id], nil
}

type passthroughTx struct{}

func (passthroughTx) RunExclusive(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(datasetID uuid.UUID) (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo, &mockDatasets{ids: map[uuid.UUID]bool{datasetID: true}}, passthroughTx{})
	return svc, repo
}

func addPatient(repo *mockRepo, datasetID uuid.UUID, key string, mutate func(*Patient)) *Patient {
	p := &Patient{
		ID:          uuid.New(),
		DatasetID:   datasetID,
		PatientKey:  key,
		Raw:         map[string]interface{}{},
		ExtraFields: map[string]interface{}{},
	}
	if mutate != nil {
		mutate(p)
	}
	repo.patients[p.ID] = p
	return p
}

func fptr(f float64) *float64 { return &f }
func sptr(s string) *string   { return &s }

// -- Fill --

func TestFill_StrictDerivesCategory(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)

	high := addPatient(repo, datasetID, "1", func(p *Patient) { p.Points = fptr(8) })
	mid := addPatient(repo, datasetID, "2", func(p *Patient) { p.Points = fptr(5) })
	low := addPatient(repo, datasetID, "3", func(p *Patient) { p.Points = fptr(2) })
	kept := addPatient(repo, datasetID, "4", func(p *Patient) {
		p.Points = fptr(9)
		p.Category = sptr("Custom")
	})

	res, err := svc.Fill(context.Background(), datasetID, FillModeStrict, nil)
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if res.PatientsUpdated != 3 || res.FieldsFilled != 3 {
		t.Errorf("unexpected result: %+v", res)
	}
	if *high.Category != "High" || *mid.Category != "Intermediate" || *low.Category != "Low" {
		t.Errorf("categories: %v %v %v", *high.Category, *mid.Category, *low.Category)
	}
	if *kept.Category != "Custom" {
		t.Errorf("populated category overwritten: %v", *kept.Category)
	}
}

func TestFill_StrictDerivesAgeGroup(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)

	p := addPatient(repo, datasetID, "1", func(p *Patient) {
		p.ExtraFields["age"] = "64"
	})
	young := addPatient(repo, datasetID, "2", func(p *Patient) {
		p.ExtraFields["age"] = 42.0
	})
	noAge := addPatient(repo, datasetID, "3", nil)

	if _, err := svc.Fill(context.Background(), datasetID, FillModeStrict, nil); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if p.AgeGroup == nil || *p.AgeGroup != "60-69" {
		t.Errorf("age group: %v", p.AgeGroup)
	}
	if young.AgeGroup == nil || *young.AgeGroup != "Under 50" {
		t.Errorf("age group: %v", young.AgeGroup)
	}
	if noAge.AgeGroup != nil {
		t.Errorf("strict mode guessed an age group: %v", *noAge.AgeGroup)
	}
}

func TestFill_ImputeMedianAndMode(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)

	addPatient(repo, datasetID, "1", func(p *Patient) { p.Points = fptr(2); p.Race = sptr("A") })
	addPatient(repo, datasetID, "2", func(p *Patient) { p.Points = fptr(4); p.Race = sptr("B") })
	addPatient(repo, datasetID, "3", func(p *Patient) { p.Points = fptr(9); p.Race = sptr("B") })
	empty := addPatient(repo, datasetID, "4", nil)

	if _, err := svc.Fill(context.Background(), datasetID, FillModeImpute, nil); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if empty.Points == nil || *empty.Points != 4 {
		t.Errorf("expected median 4, got %v", empty.Points)
	}
	if empty.Race == nil || *empty.Race != "B" {
		t.Errorf("expected mode B, got %v", empty.Race)
	}
}

func TestFill_ImputeIdempotent(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)

	addPatient(repo, datasetID, "1", func(p *Patient) { p.Points = fptr(3); p.Location = sptr("Clinic A") })
	addPatient(repo, datasetID, "2", nil)

	first, err := svc.Fill(context.Background(), datasetID, FillModeImpute, nil)
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if first.FieldsFilled == 0 {
		t.Fatal("first fill filled nothing")
	}

	second, err := svc.Fill(context.Background(), datasetID, FillModeImpute, nil)
	if err != nil {
		t.Fatalf("second fill: %v", err)
	}
	if second.FieldsFilled != 0 || second.PatientsUpdated != 0 {
		t.Errorf("second fill should be a no-op, got %+v", second)
	}
}

func TestFill_ModeTieBreaksLexicographically(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)

	addPatient(repo, datasetID, "1", func(p *Patient) { p.Race = sptr("Zeta") })
	addPatient(repo, datasetID, "2", func(p *Patient) { p.Race = sptr("Alpha") })
	empty := addPatient(repo, datasetID, "3", nil)

	if _, err := svc.Fill(context.Background(), datasetID, FillModeImpute, nil); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if empty.Race == nil || *empty.Race != "Alpha" {
		t.Errorf("tie should break to smallest value, got %v", empty.Race)
	}
}

func TestFill_UnknownMode(t *testing.T) {
	datasetID := uuid.New()
	svc, _ := newTestService(datasetID)
	_, err := svc.Fill(context.Background(), datasetID, "magic", nil)
	if !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestFill_UnknownDataset(t *testing.T) {
	svc, _ := newTestService(uuid.New())
	_, err := svc.Fill(context.Background(), uuid.New(), FillModeStrict, nil)
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestFill_UnknownPatientInSubset(t *testing.T) {
	datasetID := uuid.New()
	svc, _ := newTestService(datasetID)
	_, err := svc.Fill(context.Background(), datasetID, FillModeStrict, []uuid.UUID{uuid.New()})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

// -- Missingness --

func TestMissingness(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)

	addPatient(repo, datasetID, "1", func(p *Patient) { p.MRN = sptr("100"); p.Points = fptr(3) })
	addPatient(repo, datasetID, "2", func(p *Patient) { p.MRN = sptr("") })

	report, err := svc.Missingness(context.Background(), datasetID)
	if err != nil {
		t.Fatalf("Missingness: %v", err)
	}
	if report.TotalPatients != 2 {
		t.Errorf("total: %d", report.TotalPatients)
	}
	if got := report.Fields["mrn"]; got.MissingCount != 1 || got.MissingPercentage != 50 {
		t.Errorf("mrn missingness: %+v", got)
	}
	if got := report.Fields["points"]; got.MissingCount != 1 {
		t.Errorf("points missingness: %+v", got)
	}
	if got := report.Fields["race"]; got.MissingCount != 2 || got.MissingPercentage != 100 {
		t.Errorf("race missingness: %+v", got)
	}
}

// -- Direct edits --

func TestUpdateFields_CoercionAndOverflow(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)
	p := addPatient(repo, datasetID, "1", nil)

	got, err := svc.UpdateFields(context.Background(), p.ID, map[string]interface{}{
		"points":        "42",
		"pca_confirmed": true,
		"insurance":     "aetna",
	})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got.Points == nil || *got.Points != 42 {
		t.Errorf("points: %v", got.Points)
	}
	if got.PCaConfirmed == nil || !*got.PCaConfirmed {
		t.Errorf("pca_confirmed: %v", got.PCaConfirmed)
	}
	if got.ExtraFields["insurance"] != "aetna" {
		t.Errorf("extra fields: %v", got.ExtraFields)
	}
}

func TestUpdateFields_NullClears(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)
	p := addPatient(repo, datasetID, "1", func(p *Patient) { p.Points = fptr(3) })

	got, err := svc.UpdateFields(context.Background(), p.ID, map[string]interface{}{"points": nil})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	if got.Points != nil {
		t.Errorf("points should be cleared, got %v", *got.Points)
	}
}

func TestUpdateFields_ProtectedKeys(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)
	p := addPatient(repo, datasetID, "1", nil)

	_, err := svc.UpdateFields(context.Background(), p.ID, map[string]interface{}{"patient_key": "hijack"})
	if !apperr.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreate_DuplicateKey(t *testing.T) {
	datasetID := uuid.New()
	svc, repo := newTestService(datasetID)
	addPatient(repo, datasetID, "12345", nil)

	err := svc.Create(context.Background(), &Patient{DatasetID: datasetID, MRN: sptr("12345")})
	if !apperr.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestCreate_UnknownDataset(t *testing.T) {
	svc, _ := newTestService(uuid.New())
	err := svc.Create(context.Background(), &Patient{DatasetID: uuid.New()})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
