package main

import (
	"bytes"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ledger", "rebate", "adjust", "member", "agent", "directive", "dump"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestDumpFiltersByPrefix(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte("draw/result/20260301001"), []byte(`{"sum":11}`)); err != nil {
			return err
		}
		return txn.Set([]byte("draw/bet/20260301001/b1"), []byte("raw"))
	}))

	var out bytes.Buffer
	n, err := dump(db, []byte("draw/result"), false, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "draw/result/20260301001")
	assert.Contains(t, out.String(), `"sum": 11`)
	assert.NotContains(t, out.String(), "b1")

	out.Reset()
	n, err = dump(db, nil, true, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NotContains(t, out.String(), "Value:")
}

func TestAdjustRequiresReason(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"adjust", "m1", "10"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	assert.ErrorContains(t, err, "reason")
}
