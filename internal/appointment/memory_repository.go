package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway keeps every record in process memory. It backs the dev
// profile (STORE_BACKEND=memory) and the test suites.
type MemoryGateway struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]Account
	appointments map[uuid.UUID]Appointment
	records      map[uuid.UUID]ClinicalRecord

	// FailUpdate, when set, is consulted before every appointment or account
	// update and may return an error to simulate a failing store.
	FailUpdate func(kind string, id uuid.UUID) error
	// FailFetch is consulted before every fetch.
	FailFetch func(kind string) error
}

const (
	KindAccount     = "account"
	KindAppointment = "appointment"
	KindRecord      = "clinical_record"
)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		accounts:     make(map[uuid.UUID]Account),
		appointments: make(map[uuid.UUID]Appointment),
		records:      make(map[uuid.UUID]ClinicalRecord),
	}
}

func (m *MemoryGateway) failFetch(kind string) error {
	if m.FailFetch == nil {
		return nil
	}
	if err := m.FailFetch(kind); err != nil {
		return gatewayErr("fetch "+kind, err)
	}
	return nil
}

func (m *MemoryGateway) failUpdate(kind string, id uuid.UUID) error {
	if m.FailUpdate == nil {
		return nil
	}
	if err := m.FailUpdate(kind, id); err != nil {
		return gatewayErr("update "+kind, err)
	}
	return nil
}

// Accounts

func (m *MemoryGateway) GetAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &acc, nil
}

func (m *MemoryGateway) FetchAccounts(_ context.Context, filter AccountFilter) ([]Account, error) {
	if err := m.failFetch(KindAccount); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Account
	for _, a := range m.accounts {
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if filter.ActiveOnly && !a.Active {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].DisplayName != result[j].DisplayName {
			return result[i].DisplayName < result[j].DisplayName
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (m *MemoryGateway) CreateAccount(_ context.Context, acc Account) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc.ID == uuid.Nil {
		acc.ID = uuid.New()
	}
	if _, exists := m.accounts[acc.ID]; exists {
		return nil, errors.Join(ErrConstraintViolation, errors.New("duplicate account id"))
	}
	acc.LastModifiedAt = time.Now()
	m.accounts[acc.ID] = acc
	return &acc, nil
}

func (m *MemoryGateway) UpdateAccount(_ context.Context, id uuid.UUID, patch AccountPatch) (*Account, error) {
	if err := m.failUpdate(KindAccount, id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	acc, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	if patch.ExpectActive != nil && acc.Active != *patch.ExpectActive {
		return nil, ErrStatusConflict
	}
	if patch.Active != nil {
		acc.Active = *patch.Active
	}
	if patch.DisplayName != nil {
		acc.DisplayName = *patch.DisplayName
	}
	acc.LastModifiedAt = time.Now()
	m.accounts[id] = acc
	return &acc, nil
}

// Appointments

func (m *MemoryGateway) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (m *MemoryGateway) FetchAppointments(_ context.Context, filter AppointmentFilter) ([]Appointment, error) {
	if err := m.failFetch(KindAppointment); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Appointment
	for _, a := range m.appointments {
		if matchesFilter(a, filter) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScheduledDate != result[j].ScheduledDate {
			return result[i].ScheduledDate < result[j].ScheduledDate
		}
		if result[i].ScheduledTime != result[j].ScheduledTime {
			return result[i].ScheduledTime < result[j].ScheduledTime
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func matchesFilter(a Appointment, f AppointmentFilter) bool {
	if f.ProviderID != uuid.Nil && a.ProviderID != f.ProviderID {
		return false
	}
	if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if a.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.FromDate != "" {
		if _, err := time.Parse(DateLayout, a.ScheduledDate); err != nil {
			return false
		}
		if a.ScheduledDate < f.FromDate {
			return false
		}
	}
	return true
}

func (m *MemoryGateway) CreateAppointment(_ context.Context, appt Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if _, exists := m.appointments[appt.ID]; exists {
		return nil, errors.Join(ErrConstraintViolation, errors.New("duplicate appointment id"))
	}
	now := time.Now()
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = now
	}
	appt.UpdatedAt = now
	m.appointments[appt.ID] = appt
	return &appt, nil
}

func (m *MemoryGateway) UpdateAppointment(_ context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	if err := m.failUpdate(KindAppointment, id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if patch.ExpectStatus != nil && appt.Status != *patch.ExpectStatus {
		return nil, ErrStatusConflict
	}
	if patch.Status != nil {
		appt.Status = *patch.Status
	}
	if patch.CancellationReason != nil {
		appt.CancellationReason = *patch.CancellationReason
	}
	if patch.ScheduledDate != nil {
		appt.ScheduledDate = *patch.ScheduledDate
	}
	if patch.ScheduledTime != nil {
		appt.ScheduledTime = *patch.ScheduledTime
	}
	appt.UpdatedAt = time.Now()
	m.appointments[id] = appt
	return &appt, nil
}

// Clinical records

func (m *MemoryGateway) CreateRecord(_ context.Context, rec ClinicalRecord) (*ClinicalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	m.records[rec.ID] = rec
	return &rec, nil
}

func (m *MemoryGateway) FetchRecords(_ context.Context, filter RecordFilter) ([]ClinicalRecord, error) {
	if err := m.failFetch(KindRecord); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ClinicalRecord
	for _, r := range m.records {
		if filter.PatientID != uuid.Nil && r.PatientID != filter.PatientID {
			continue
		}
		if filter.ProviderID != uuid.Nil && r.ProviderID != filter.ProviderID {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryGateway) RemoveRecord(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}
