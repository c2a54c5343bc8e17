package storage

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hailam/connectplay/internal/board"
)

func openMemory(t *testing.T) *Storage {
	t.Helper()
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorage(t *testing.T) {
	t.Run("DefaultPreferences", func(t *testing.T) {
		prefs := DefaultPreferences()
		if prefs.Difficulty != "medium" {
			t.Errorf("Expected medium difficulty, got %q", prefs.Difficulty)
		}
		if prefs.Board != board.DefaultConfig {
			t.Errorf("Expected the default board, got %v", prefs.Board)
		}
		if !prefs.UseBook {
			t.Errorf("Expected the book enabled by default")
		}
	})

	t.Run("NewGameStats", func(t *testing.T) {
		stats := NewGameStats()
		if stats.GamesPlayed != 0 {
			t.Errorf("Expected 0 games played")
		}
		if stats.GetWinRate() != 0 {
			t.Errorf("Expected 0 win rate")
		}
	})

	t.Run("WinRate", func(t *testing.T) {
		stats := &GameStats{
			GamesPlayed: 10,
			Wins:        5,
			Losses:      3,
			Draws:       2,
		}
		rate := stats.GetWinRate()
		if rate != 50 {
			t.Errorf("Expected 50%% win rate, got %.2f%%", rate)
		}
	})
}

func TestPreferencesRoundTrip(t *testing.T) {
	s := openMemory(t)

	prefs, err := s.LoadPreferences()
	if err != nil {
		t.Fatalf("LoadPreferences: %v", err)
	}
	if prefs.Difficulty != "medium" {
		t.Errorf("missing preferences should load defaults, got %+v", prefs)
	}

	prefs.Difficulty = "hard"
	prefs.Board = board.Config{Rows: 7, Columns: 8, WinLength: 5}
	prefs.UseBook = false
	if err := s.SavePreferences(prefs); err != nil {
		t.Fatalf("SavePreferences: %v", err)
	}

	got, err := s.LoadPreferences()
	if err != nil {
		t.Fatalf("LoadPreferences: %v", err)
	}
	if got.Difficulty != "hard" || got.Board != prefs.Board || got.UseBook {
		t.Errorf("loaded %+v, want %+v", got, prefs)
	}
	if got.LastPlayed.IsZero() {
		t.Error("LastPlayed not stamped")
	}
}

func TestRecordGame(t *testing.T) {
	s := openMemory(t)

	results := []GameResult{
		{Outcome: OutcomeWin, Difficulty: "easy", Board: board.DefaultConfig, Moves: 21, Duration: time.Minute},
		{Outcome: OutcomeWin, Difficulty: "hard", Board: board.DefaultConfig, Moves: 30, Duration: time.Minute},
		{Outcome: OutcomeLoss, Difficulty: "hard", Board: board.DefaultConfig, Moves: 18, Duration: time.Minute},
		{Outcome: OutcomeDraw, Difficulty: "hard", Board: board.DefaultConfig, Moves: 42, Duration: time.Minute},
		{Outcome: OutcomeWin, Difficulty: "hard", Board: board.Config{Rows: 5, Columns: 5, WinLength: 4}, Moves: 9},
	}
	for _, r := range results {
		if err := s.RecordGame(r); err != nil {
			t.Fatalf("RecordGame: %v", err)
		}
	}

	stats, err := s.LoadStats()
	if err != nil {
		t.Fatalf("LoadStats: %v", err)
	}
	if stats.GamesPlayed != 5 || stats.Wins != 3 || stats.Losses != 1 || stats.Draws != 1 {
		t.Errorf("counts = %+v", stats)
	}
	if stats.LongestWinStrk != 2 || stats.CurrentStreak != 1 {
		t.Errorf("streaks: longest=%d current=%d, want 2 and 1", stats.LongestWinStrk, stats.CurrentStreak)
	}
	if stats.WinsByDiff["hard"] != 2 || stats.WinsByDiff["easy"] != 1 {
		t.Errorf("WinsByDiff = %v", stats.WinsByDiff)
	}
	if stats.GamesByBoard["6x7/4"] != 4 || stats.GamesByBoard["5x5/4"] != 1 {
		t.Errorf("GamesByBoard = %v", stats.GamesByBoard)
	}
	if stats.TotalMoves != 120 || stats.TotalPlayTime != 4*time.Minute {
		t.Errorf("moves=%d time=%v", stats.TotalMoves, stats.TotalPlayTime)
	}
}

func TestRecordDecision(t *testing.T) {
	s := openMemory(t)
	for _, n := range []uint64{100, 2500, 0} {
		if err := s.RecordDecision(n); err != nil {
			t.Fatalf("RecordDecision: %v", err)
		}
	}
	stats, err := s.LoadStats()
	if err != nil {
		t.Fatalf("LoadStats: %v", err)
	}
	if stats.Decisions != 3 || stats.NodesSearched != 2600 {
		t.Errorf("decisions=%d nodes=%d", stats.Decisions, stats.NodesSearched)
	}
}

func TestFirstLaunch(t *testing.T) {
	s := openMemory(t)
	first, err := s.IsFirstLaunch()
	if err != nil || !first {
		t.Fatalf("IsFirstLaunch = %v, %v; want true", first, err)
	}
	if err := s.MarkFirstLaunchComplete(); err != nil {
		t.Fatal(err)
	}
	if first, _ := s.IsFirstLaunch(); first {
		t.Error("still first launch after marking")
	}
}

func TestOnDiskPersistence(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.RecordGame(GameResult{Outcome: OutcomeWin, Difficulty: "medium", Board: board.DefaultConfig}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	stats, err := s.LoadStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Wins != 1 {
		t.Errorf("Wins after reopen = %d, want 1", stats.Wins)
	}
}

func TestParseOutcome(t *testing.T) {
	for _, o := range []Outcome{OutcomeWin, OutcomeLoss, OutcomeDraw} {
		got, err := ParseOutcome(o.String())
		if err != nil || got != o {
			t.Errorf("ParseOutcome(%q) = %v, %v", o.String(), got, err)
		}
	}
	if _, err := ParseOutcome("forfeit"); err == nil {
		t.Error("ParseOutcome accepted forfeit")
	}
}

func TestDataPaths(t *testing.T) {
	t.Setenv(DataDirEnv, "")
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	dataDir, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir failed: %v", err)
	}
	if dataDir == "" {
		t.Error("GetDataDir returned empty path")
	}

	// Verify directory exists
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("Data directory was not created: %s", dataDir)
	}

	t.Logf("Data directory: %s", dataDir)
}

func TestDataDirOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	t.Setenv(DataDirEnv, dir)

	got, err := GetDataDir()
	if err != nil {
		t.Fatalf("GetDataDir: %v", err)
	}
	if got != dir {
		t.Errorf("GetDataDir = %q, want %q", got, dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("override directory not created: %v", err)
	}

	book, err := GetBookPath()
	if err != nil || book != filepath.Join(dir, "book.yaml") {
		t.Errorf("GetBookPath = %q, %v", book, err)
	}
	cfg, err := GetConfigPath()
	if err != nil || cfg != filepath.Join(dir, "config.yaml") {
		t.Errorf("GetConfigPath = %q, %v", cfg, err)
	}
}

func TestPlatformDataHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("home directory comes from USERPROFILE")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("APPDATA", "")

	tests := []struct {
		goos string
		want string
	}{
		{"linux", filepath.Join(home, ".local", "share")},
		{"darwin", filepath.Join(home, "Library", "Application Support")},
		{"windows", filepath.Join(home, "AppData", "Roaming")},
	}
	for _, tc := range tests {
		got, err := platformDataHome(tc.goos)
		if err != nil || got != tc.want {
			t.Errorf("%s: %q, %v; want %q", tc.goos, got, err, tc.want)
		}
	}

	t.Setenv("XDG_DATA_HOME", "/xdg")
	if got, _ := platformDataHome("linux"); got != "/xdg" {
		t.Errorf("XDG_DATA_HOME ignored: %q", got)
	}
	if got, _ := platformDataHome("darwin"); got == "/xdg" {
		t.Error("darwin used XDG_DATA_HOME")
	}
}
