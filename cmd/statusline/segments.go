package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/promptline/go-statusline/cache"
	"github.com/promptline/go-statusline/session"
)

var (
	dirStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	branchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	staleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	osStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	sepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// renderLine assembles the status line from memoized facts. Each fact
// is computed at most once per render cycle even though segments may
// share it, and no segment ever blocks on a subprocess: stale cached
// values render immediately while a refresh runs in the background.
func renderLine(ctx context.Context, svc *cache.Service) string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "?"
	}

	segments := []string{dirStyle.Render(shortPath(cwd))}
	if branch, stale, ok := gitBranch(ctx, svc, cwd); ok {
		seg := branchStyle.Render(" " + branch)
		if stale {
			seg = staleStyle.Render(" " + branch)
		}
		segments = append(segments, seg)
	}
	segments = append(segments, osStyle.Render(osName(svc)))

	return strings.Join(segments, sepStyle.Render(" │ "))
}

func shortPath(path string) string {
	if home, err := os.UserHomeDir(); err == nil && strings.HasPrefix(path, home) {
		return "~" + strings.TrimPrefix(path, home)
	}
	return path
}

// gitBranch serves the branch for cwd from the cache; on a stale or
// absent entry it schedules a background `git` invocation and renders
// whatever is available now. The returned bool reports presence, the
// stale flag lets the caller dim the segment.
func gitBranch(ctx context.Context, svc *cache.Service, cwd string) (string, bool, bool) {
	type result struct {
		branch string
		stale  bool
		ok     bool
	}
	r := session.Memoize(svc.Session(), "git_branch", func() result {
		entry, freshness, found := svc.Get(ctx, "git_branch", cwd)
		if !found || freshness == cache.Stale {
			dir := cwd // owned copy for the detached task
			svc.ScheduleRefresh("git_branch:"+hashName(dir), "git_branch", dir, func(taskCtx context.Context) (string, bool) {
				out, err := exec.CommandContext(taskCtx, "git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD").Output()
				if err != nil {
					return "", false
				}
				return strings.TrimSpace(string(out)), true
			})
		}
		if !found || entry.Value == "" {
			return result{}
		}
		return result{branch: entry.Value, stale: freshness == cache.Stale, ok: true}
	})
	return r.branch, r.stale, r.ok
}

// hashName makes a filesystem-safe lock name from an arbitrary path.
func hashName(path string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, filepath.Clean(path))
}

func osName(svc *cache.Service) string {
	return session.Memoize(svc.Session(), "os_name", func() string {
		return runtime.GOOS + "/" + runtime.GOARCH
	})
}
