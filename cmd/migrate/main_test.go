package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	version int64
	applied int
	upSteps []int
	down    []int
	err     error
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	if f.err != nil {
		return f.err
	}
	f.version, f.applied = 2, 2
	return nil
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.down = append(f.down, steps)
	if f.err != nil {
		return f.err
	}
	f.version, f.applied = f.version-int64(steps), f.applied-steps
	return nil
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, nil
}

func TestMigrate_Directions(t *testing.T) {
	m := &fakeMigrator{}
	var out bytes.Buffer

	require.NoError(t, migrate(context.Background(), m, "UP", 0, &out))
	assert.Equal(t, []int{0}, m.upSteps)
	assert.Contains(t, out.String(), "migrate up ok: version=2 applied=2")

	out.Reset()
	require.NoError(t, migrate(context.Background(), m, "down", 0, &out))
	assert.Equal(t, []int{1}, m.down)
	assert.Contains(t, out.String(), "migrate down ok: version=1 applied=1")

	out.Reset()
	require.NoError(t, migrate(context.Background(), m, " status ", 0, &out))
	assert.Equal(t, "migration status: version=1 applied=1\n", out.String())
}

func TestMigrate_Errors(t *testing.T) {
	var out bytes.Buffer

	err := migrate(context.Background(), &fakeMigrator{}, "sideways", 0, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported direction")

	err = migrate(context.Background(), &fakeMigrator{err: errors.New("lock timeout")}, "up", 1, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrate up failed")
	assert.Empty(t, out.String())
}

func TestMainMissingDSNExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_EXIT") == "1" {
		os.Args = []string{"migrate", "-direction=status", "-dsn="}
		flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainMissingDSNExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_EXIT=1", "MARKETPLACE_POSTGRES_DSN=")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
