package storage

import "context"

// DisabledStore rejects every write. Used when storage.backend = "disabled".
type DisabledStore struct{}

func (DisabledStore) Name() string { return "disabled" }

func (DisabledStore) Put(context.Context, string, []byte, string) error { return ErrStorageDisabled }

func (DisabledStore) URL(string) string { return "" }

func (DisabledStore) KeyFor(string) (string, bool) { return "", false }
