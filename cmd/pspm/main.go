// Command pspm installs skills from the registry, GitHub, or a local
// directory into a project and links them into the selected agents' skill
// directories.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/anyt-io/pspm-cli"
	"github.com/anyt-io/pspm-cli/install"
	"github.com/anyt-io/pspm-cli/log"
)

const defaultRegistryURL = "https://registry.pspm.dev"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	if len(args) < 2 {
		usage(stderr)
		return 1
	}

	logger := log.New(stdout)

	switch args[1] {
	case "add":
		return runAdd(args[2:], logger)
	case "install":
		return runInstall(args[2:], logger)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "pspm: %s: no such command\n", args[1])
		usage(stderr)
		return 1
	}
}

func usage(w *os.File) {
	fmt.Fprintln(w, "Usage: pspm <command> [flags] [specifiers...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  add <specifier...>   resolve and install the given skills, updating pspm.json")
	fmt.Fprintln(w, "  install              install everything already declared in pspm.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -agent value         agent to link into (repeatable); default is all built-ins")
	fmt.Fprintln(w, "  -frozen-lockfile     install registry skills only from lockfile pins and the cache;")
	fmt.Fprintln(w, "                       unpinned or uncached ones fail (the lockfile is still written)")
}

// agentFlags collects repeated -agent flags into a slice.
type agentFlags []string

func (a *agentFlags) String() string     { return strings.Join(*a, ",") }
func (a *agentFlags) Set(v string) error { *a = append(*a, v); return nil }

// baseConfig builds a Config's environment-derived fields and registers the
// shared flags (-agent, -frozen-lockfile) onto fs. Agents is populated once
// fs.Parse has run.
func baseConfig(fs *flag.FlagSet) (*pspm.Config, *agentFlags) {
	cfg := &pspm.Config{}
	var agents agentFlags
	fs.Var(&agents, "agent", "agent to link into (repeatable)")
	fs.BoolVar(&cfg.FrozenLockfile, "frozen-lockfile", false, "install registry skills only from lockfile pins and the cache")

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	cfg.ProjectRoot = wd
	cfg.RegistryURL = envOr("PSPM_REGISTRY_URL", defaultRegistryURL)
	cfg.Token = os.Getenv("PSPM_TOKEN")
	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	return cfg, &agents
}

func runAdd(args []string, logger *log.Logger) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	cfg, agents := baseConfig(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg.Agents = *agents

	o, err := install.New(*cfg, logger)
	if err != nil {
		logger.Warnf("%s", err)
		return 1
	}
	res, err := o.Add(context.Background(), fs.Args())
	return report(res, err, logger)
}

func runInstall(args []string, logger *log.Logger) int {
	fs := flag.NewFlagSet("install", flag.ContinueOnError)
	cfg, agents := baseConfig(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg.Agents = *agents

	o, err := install.New(*cfg, logger)
	if err != nil {
		logger.Warnf("%s", err)
		return 1
	}
	res, err := o.Install(context.Background())
	return report(res, err, logger)
}

func report(res *install.Result, err error, logger *log.Logger) int {
	if err != nil {
		logger.Warnf("%s", err)
		return 1
	}

	failed := false
	for _, r := range res.Reports {
		if r.Err != nil {
			logger.Pkgf(r.Identity, "%s", r.Err)
			failed = true
		}
	}
	for _, orphan := range res.Orphans {
		logger.Warnf("orphaned store entry %s", orphan)
	}
	if failed {
		return 1
	}
	return 0
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
