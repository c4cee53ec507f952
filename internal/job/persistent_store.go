package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/researchd/orchestrator/internal/db"
)

const SystemNamespace = "research"

const keyPrefix = "jobs/"

// PersistentStore keeps jobs in badger as JSON documents.
type PersistentStore struct {
	dbStore *db.Store
}

func NewPersistentStore(dbStore *db.Store) *PersistentStore {
	return &PersistentStore{dbStore: dbStore}
}

func (s *PersistentStore) Create(_ context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := s.dbStore.Insert(SystemNamespace, keyPrefix+j.ID, data); err != nil {
		if errors.Is(err, db.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, j.ID)
		}
		return fmt.Errorf("store job: %w", err)
	}
	return nil
}

func (s *PersistentStore) Get(_ context.Context, id string) (*Job, error) {
	data, err := s.dbStore.Get(SystemNamespace, keyPrefix+id)
	if err != nil {
		return nil, mapKeyErr(id, err)
	}

	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &j, nil
}

func (s *PersistentStore) UpdateStatus(_ context.Context, id string, u Update) error {
	return s.modify(id, func(j *Job) { j.Apply(u) })
}

func (s *PersistentStore) RenameTopic(_ context.Context, id, topic string) error {
	return s.modify(id, func(j *Job) { j.Topic = topic })
}

func (s *PersistentStore) Delete(_ context.Context, id string) error {
	if err := s.dbStore.Delete(SystemNamespace, keyPrefix+id); err != nil {
		return mapKeyErr(id, err)
	}
	return nil
}

func (s *PersistentStore) ListSummaries(_ context.Context) ([]Summary, error) {
	var all []Summary
	err := s.dbStore.Scan(SystemNamespace, keyPrefix, func(key string, value []byte) error {
		var j Job
		if err := json.Unmarshal(value, &j); err != nil {
			return fmt.Errorf("unmarshal %s: %w", key, err)
		}
		all = append(all, j.Summary())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	sortSummaries(all)
	return all, nil
}

// modify runs a read-modify-write of one job inside a single badger transaction.
func (s *PersistentStore) modify(id string, fn func(j *Job)) error {
	err := s.dbStore.Update(SystemNamespace, keyPrefix+id, func(old []byte) ([]byte, error) {
		var j Job
		if err := json.Unmarshal(old, &j); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		fn(&j)
		return json.Marshal(&j)
	})
	if err != nil {
		return mapKeyErr(id, err)
	}
	return nil
}

func mapKeyErr(id string, err error) error {
	if errors.Is(err, db.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
