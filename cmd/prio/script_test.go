package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"

	"github.com/prioritylab/prio/internal/remote/remotetest"
	"github.com/prioritylab/prio/internal/storage/sqlite"
	"github.com/prioritylab/prio/internal/types"
)

const testToken = "script-token"

// TestMain lets the test binary stand in for the prio executable: scripts
// run it again with PRIO_TEST_MAIN=1, which dispatches straight to main.
func TestMain(m *testing.M) {
	if os.Getenv("PRIO_TEST_MAIN") == "1" {
		main()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func TestScripts(t *testing.T) {
	if testing.Short() {
		t.Skip("script tests run the binary; skipped in -short mode")
	}
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}

	files, err := filepath.Glob(filepath.Join("testdata", "script", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scripts found")
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".txt")
		t.Run(name, func(t *testing.T) {
			srv := remotetest.NewServer(testToken)
			t.Cleanup(srv.Close)

			engine := script.NewEngine()
			engine.Cmds["prio"] = script.Program(exe, nil, 0)
			engine.Cmds["taskid"] = taskIDCmd()

			work := t.TempDir()
			env := []string{
				"PRIO_TEST_MAIN=1",
				"WORK=" + work,
				"PATH=" + os.Getenv("PATH"),
				"HOME=" + work,
				"XDG_CONFIG_HOME=" + filepath.Join(work, ".config"),
				"XDG_DATA_HOME=" + filepath.Join(work, ".local", "share"),
				"NO_COLOR=1",
				"PRIO_NO_PAGER=1",
				"PRIO_DB=" + filepath.Join(work, "prio.db"),
				"PRIO_CONFIG=" + filepath.Join(work, "config.yaml"),
				"PRIO_REMOTE_URL=" + srv.URL(),
				"PRIO_REMOTE_TOKEN=" + testToken,
				"PRIO_SYNC_WATCH=false",
			}
			if v, ok := os.LookupEnv("SYSTEMROOT"); ok {
				env = append(env, "SYSTEMROOT="+v)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			s, err := script.NewState(ctx, work, env)
			if err != nil {
				t.Fatal(err)
			}
			data, err := os.ReadFile(file)
			if err != nil {
				t.Fatal(err)
			}
			scripttest.Run(t, engine, s, file, bytes.NewReader(data))
		})
	}
}

// taskIDCmd stores the id of the task with the given title in an env var, so
// scripts can address tasks that have no active position.
func taskIDCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "look up a task id by title",
			Args:    "title var",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) != 2 {
				return nil, script.ErrUsage
			}
			path, _ := s.LookupEnv("PRIO_DB")
			db, err := sqlite.New(s.Context(), path)
			if err != nil {
				return nil, err
			}
			defer db.Close()
			tasks, err := db.SearchTasks(s.Context(), types.TaskFilter{})
			if err != nil {
				return nil, err
			}
			for _, t := range tasks {
				if t.Title == args[0] {
					return nil, s.Setenv(args[1], t.ID)
				}
			}
			return nil, fmt.Errorf("no task titled %q", args[0])
		})
}
