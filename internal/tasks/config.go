package tasks

import (
	"fmt"

	"github.com/podkeep/podkeep/internal/engine"
	"github.com/podkeep/podkeep/internal/records"
	"github.com/podkeep/podkeep/internal/shared"
	"github.com/podkeep/podkeep/internal/store"
)

// configGet reads one value from the config store.
type configGet struct {
	key   string
	stage int
	txn   *store.Txn
	value string
}

// NewGetConfigValue builds a read task for one configuration key.
func NewGetConfigValue(key string) engine.Task {
	return &configGet{key: key}
}

func (t *configGet) Name() string { return "get-config" }

func (t *configGet) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadOnly, store.Config)
	req := t.txn.Store(store.Config).Get(t.key)
	return t.txn, []*store.Request{req}, nil
}

func (t *configGet) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	if t.stage == stageRead {
		if len(ev.Rows) == 0 {
			return engine.Progress{}, fmt.Errorf("%w: config %s", shared.ErrNotFound, t.key)
		}
		t.value = string(ev.Rows[0].Val)
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	return engine.Progress{Done: true, Response: records.ConfigValue{Key: t.key, Value: t.value}}, nil
}

// configSet writes one value to the config store.
type configSet struct {
	key   string
	value string
	stage int
	txn   *store.Txn
}

// NewSetConfigValue builds a write task for one configuration key.
func NewSetConfigValue(key, value string) engine.Task {
	return &configSet{key: key, value: value}
}

func (t *configSet) Name() string { return "set-config" }

func (t *configSet) Issue(gw *store.Gateway) (*store.Txn, []*store.Request, error) {
	t.txn = gw.Begin(store.ReadWrite, store.Config)
	req := t.txn.Store(store.Config).Put(t.key, []byte(t.value), nil)
	return t.txn, []*store.Request{req}, nil
}

func (t *configSet) Advance(ev store.Event) (engine.Progress, error) {
	if ev.Err != nil {
		return engine.Progress{}, ev.Err
	}
	if t.stage == stageRead {
		t.stage = stageCommit
		t.txn.Commit()
		return engine.Progress{}, nil
	}
	return engine.Progress{Done: true, Response: records.ConfigValue{Key: t.key, Value: t.value}}, nil
}
