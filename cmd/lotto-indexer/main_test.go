package main

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDump(t *testing.T) {
	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set("mini/a", "1"))
	require.NoError(t, kv.Set("mini/b", "2"))
	require.NoError(t, kv.Set("other/c", "3"))

	var out bytes.Buffer
	require.NoError(t, dump(&out, kv, "mini/", false))
	assert.Equal(t, "mini/a = 1\nmini/b = 2\n2 keys\n", out.String())

	out.Reset()
	require.NoError(t, dump(&out, kv, "mini/", true))
	assert.Equal(t, "mini/a\nmini/b\n2 keys\n", out.String())
}

func TestMigrate(t *testing.T) {
	src, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	require.NoError(t, err)
	defer src.Close()
	dst, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	require.NoError(t, err)
	defer dst.Close()

	for i := range 100 {
		require.NoError(t, src.Set(fmt.Sprintf("combo/mini/rec/%03d", i), fmt.Sprint(i)))
	}
	require.NoError(t, src.Set("draws/mini/2024-03-01", "{}"))
	require.NoError(t, src.Set("other/key", "x"))

	n, err := migrate(src, dst, defaultPrefixes, false, true)
	require.NoError(t, err)
	assert.Equal(t, 101, n)
	_, err = dst.Get("combo/mini/rec/000")
	assert.Error(t, err)

	n, err = migrate(src, dst, defaultPrefixes, true, false)
	require.NoError(t, err)
	assert.Equal(t, 101, n)
	got, err := dst.Get("combo/mini/rec/099")
	require.NoError(t, err)
	assert.Equal(t, "99", got)
	_, err = dst.Get("other/key")
	assert.Error(t, err)
}
