package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
)

type fakeMigrator struct {
	upErr      error
	downErr    error
	versionErr error
	steps      []int
	forced     []int
	calls      []string
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return f.downErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return 1, false, f.versionErr
}

func (f *fakeMigrator) Force(version int) error {
	f.forced = append(f.forced, version)
	return nil
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name    string
		m       *fakeMigrator
		command string
		args    []string
		wantErr bool
	}{
		{"up", &fakeMigrator{}, "up", nil, false},
		{"up no change", &fakeMigrator{upErr: migrate.ErrNoChange}, "up", nil, false},
		{"up failure", &fakeMigrator{upErr: errors.New("dirty database")}, "up", nil, true},
		{"down no change", &fakeMigrator{downErr: migrate.ErrNoChange}, "down", nil, false},
		{"version", &fakeMigrator{}, "version", nil, false},
		{"version before first migration", &fakeMigrator{versionErr: migrate.ErrNilVersion}, "version", nil, false},
		{"steps", &fakeMigrator{}, "steps", []string{"-1"}, false},
		{"steps without count", &fakeMigrator{}, "steps", nil, true},
		{"force", &fakeMigrator{}, "force", []string{"1"}, false},
		{"force bad number", &fakeMigrator{}, "force", []string{"one"}, true},
		{"unknown", &fakeMigrator{}, "sideways", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := run(tc.m, tc.command, tc.args)
			if (err != nil) != tc.wantErr {
				t.Errorf("run(%q) error = %v, wantErr %v", tc.command, err, tc.wantErr)
			}
		})
	}
}

func TestRunPassesArguments(t *testing.T) {
	m := &fakeMigrator{}
	if err := run(m, "steps", []string{"-1"}); err != nil {
		t.Fatalf("run(steps) failed: %v", err)
	}
	if err := run(m, "force", []string{"3"}); err != nil {
		t.Fatalf("run(force) failed: %v", err)
	}
	if len(m.steps) != 1 || m.steps[0] != -1 {
		t.Errorf("steps = %v, want [-1]", m.steps)
	}
	if len(m.forced) != 1 || m.forced[0] != 3 {
		t.Errorf("forced = %v, want [3]", m.forced)
	}
}
