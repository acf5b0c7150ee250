package profile

import (
	"context"
	"errors"
	"time"

	"github.com/graph-gophers/dataloader/v7"
)

// Directory resolves display names for appointment parties. Lookups issued
// concurrently within a short window are batched into one repository query.
type Directory struct {
	doctors  *dataloader.Loader[string, *Doctor]
	patients *dataloader.Loader[string, *Patient]
}

const directoryBatchWait = 2 * time.Millisecond

func NewDirectory(doctors DoctorRepository, patients PatientRepository) *Directory {
	return &Directory{
		doctors: dataloader.NewBatchedLoader(batchDoctors(doctors),
			dataloader.WithWait[string, *Doctor](directoryBatchWait),
			dataloader.WithCache[string, *Doctor](&dataloader.NoCache[string, *Doctor]{})),
		patients: dataloader.NewBatchedLoader(batchPatients(patients),
			dataloader.WithWait[string, *Patient](directoryBatchWait),
			dataloader.WithCache[string, *Patient](&dataloader.NoCache[string, *Patient]{})),
	}
}

func batchDoctors(repo DoctorRepository) dataloader.BatchFunc[string, *Doctor] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[*Doctor] {
		results := make([]*dataloader.Result[*Doctor], len(keys))
		doctors, err := repo.GetMany(ctx, keys)
		byID := make(map[string]*Doctor, len(doctors))
		for _, d := range doctors {
			byID[d.ID] = d
		}
		for i, key := range keys {
			switch d, ok := byID[key]; {
			case err != nil:
				results[i] = &dataloader.Result[*Doctor]{Error: err}
			case ok:
				results[i] = &dataloader.Result[*Doctor]{Data: d}
			default:
				results[i] = &dataloader.Result[*Doctor]{Error: ErrNotFound}
			}
		}
		return results
	}
}

func batchPatients(repo PatientRepository) dataloader.BatchFunc[string, *Patient] {
	return func(ctx context.Context, keys []string) []*dataloader.Result[*Patient] {
		results := make([]*dataloader.Result[*Patient], len(keys))
		patients, err := repo.GetMany(ctx, keys)
		byID := make(map[string]*Patient, len(patients))
		for _, p := range patients {
			byID[p.ID] = p
		}
		for i, key := range keys {
			switch p, ok := byID[key]; {
			case err != nil:
				results[i] = &dataloader.Result[*Patient]{Error: err}
			case ok:
				results[i] = &dataloader.Result[*Patient]{Data: p}
			default:
				results[i] = &dataloader.Result[*Patient]{Error: ErrNotFound}
			}
		}
		return results
	}
}

// DoctorNames maps each id that resolves to the doctor's full name. Unknown
// ids are left out; an error is returned only when the lookup itself failed.
func (d *Directory) DoctorNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	values, errs := d.doctors.LoadMany(ctx, ids)()
	names := make(map[string]string, len(ids))
	for i, id := range ids {
		if e := errAt(errs, i); e != nil {
			if !errors.Is(e, ErrNotFound) {
				return names, e
			}
			continue
		}
		if i < len(values) && values[i] != nil {
			names[id] = values[i].FullName
		}
	}
	return names, nil
}

// PatientNames is the patient counterpart of DoctorNames.
func (d *Directory) PatientNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	values, errs := d.patients.LoadMany(ctx, ids)()
	names := make(map[string]string, len(ids))
	for i, id := range ids {
		if e := errAt(errs, i); e != nil {
			if !errors.Is(e, ErrNotFound) {
				return names, e
			}
			continue
		}
		if i < len(values) && values[i] != nil {
			names[id] = values[i].FullName
		}
	}
	return names, nil
}

func errAt(errs []error, i int) error {
	if i < len(errs) {
		return errs[i]
	}
	return nil
}
