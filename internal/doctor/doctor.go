// Package doctor runs local health checks covering configuration, the
// GitHub token, the keyring, profiles, and on-disk state.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/unix"

	"termbackup/internal/config"
	"termbackup/internal/credentials"
	"termbackup/internal/github"
	"termbackup/internal/history"
	"termbackup/internal/profile"
	"termbackup/internal/signing"
	"termbackup/internal/ui"
)

// lowDiskThreshold is the free-space floor below which the disk check fails.
const lowDiskThreshold = 512 * 1024 * 1024

// Check is one health check outcome.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Doctor holds everything the checks inspect.
type Doctor struct {
	cfg      *config.Config
	cfgPath  string
	cfgFound bool
	cfgErr   error

	validator *github.Validator
	profiles  *profile.Store
	keypair   signing.Keypair
	console   *ui.Console
	version   string

	// Seams for tests.
	resolveToken func(configured string) string
	keyringProbe func() error
	freeSpace    func(path string) (uint64, error)
}

// Options configures a Doctor. Config may be nil when loading failed; pass
// the load error in ConfigErr so the config check can report it.
type Options struct {
	Config      *config.Config
	ConfigPath  string
	ConfigFound bool
	ConfigErr   error

	Validator *github.Validator
	Console   *ui.Console
	Version   string
}

// New builds a Doctor.
func New(opts Options) *Doctor {
	console := opts.Console
	if console == nil {
		console = ui.NewPlainConsole(os.Stdout)
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	d := &Doctor{
		cfg:          opts.Config,
		cfgPath:      opts.ConfigPath,
		cfgFound:     opts.ConfigFound,
		cfgErr:       opts.ConfigErr,
		validator:    opts.Validator,
		console:      console,
		version:      version,
		resolveToken: credentials.ResolveToken,
		keyringProbe: credentials.Probe,
		freeSpace:    freeSpace,
	}
	if d.cfg != nil {
		d.profiles = profile.NewStore(d.cfg.ProfilesDir())
		d.keypair = signing.Keypair{
			PrivatePath: d.cfg.SigningKeyPath(),
			PublicPath:  d.cfg.SigningPubPath(),
		}
		if d.validator == nil {
			d.validator = github.NewValidator(d.cfg.GitHub.APIURL, nil)
		}
	}
	return d
}

// Run executes all checks and returns their outcomes in display order.
func (d *Doctor) Run(ctx context.Context) []Check {
	checks := []Check{d.checkConfig()}
	if d.cfg == nil {
		return checks
	}

	token := d.resolveToken(d.cfg.GitHub.Token)
	checks = append(checks, d.checkToken(token))
	validation, connectivity := d.checkGitHub(ctx, token)
	checks = append(checks, validation, connectivity)
	checks = append(checks,
		d.checkKeyring(),
		d.checkProfiles(),
		d.checkSourceDirs(),
		d.checkSigningKey(),
		d.checkAuditLog(),
		d.checkTempFiles(),
		d.checkHistoryDB(ctx),
		d.checkDiskSpace(),
	)
	return checks
}

// Render prints the checklist, an environment panel, and a pass summary.
func (d *Doctor) Render(checks []Check) {
	d.console.Header("System Health Check")
	passed := 0
	for _, check := range checks {
		kind := ui.Error
		if check.Passed {
			kind = ui.OK
			passed++
		}
		d.console.StatusLine(check.Name, kind, check.Detail)
	}

	d.console.Plain("")
	d.console.KeyValue("Version", d.version)
	d.console.KeyValue("Go", runtime.Version())
	d.console.KeyValue("Platform", runtime.GOOS+"/"+runtime.GOARCH)
	if d.cfgPath != "" {
		d.console.KeyValue("Config", d.cfgPath)
	}

	if passed == len(checks) {
		d.console.Success("All %d checks passed", len(checks))
	} else {
		d.console.Warning("%d/%d checks passed", passed, len(checks))
	}
}

func (d *Doctor) checkConfig() Check {
	switch {
	case d.cfgErr != nil:
		return Check{"Config File", false, fmt.Sprintf("Parse error: %v", d.cfgErr)}
	case !d.cfgFound:
		return Check{"Config File", true, "Not found, using defaults (run 'termbackup init' to create one)"}
	default:
		return Check{"Config File", true, "Valid"}
	}
}

func (d *Doctor) checkToken(token string) Check {
	if strings.TrimSpace(token) == "" {
		return Check{"GitHub Token", false, "Not configured"}
	}
	return Check{"GitHub Token", true, "Found (" + github.MaskToken(token) + ")"}
}

// checkGitHub validates the token against the live API once and derives both
// the validation and the connectivity check from the result.
func (d *Doctor) checkGitHub(ctx context.Context, token string) (Check, Check) {
	if strings.TrimSpace(token) == "" {
		return Check{"Token Validation", false, "No token to validate"},
			Check{"GitHub API", false, "No token to connect with"}
	}

	info := d.validator.Validate(ctx, token)
	switch info.Status {
	case github.StatusValid:
		detail := fmt.Sprintf("%s token, user: %s", titleWords(string(info.TokenType)), info.Username)
		if len(info.Scopes) > 0 {
			limit := min(len(info.Scopes), 3)
			detail += ", scopes: " + strings.Join(info.Scopes[:limit], ", ")
		}
		return Check{"Token Validation", true, detail},
			Check{"GitHub API", true, "Connected as " + info.Username}
	case github.StatusNetworkError:
		return Check{"Token Validation", true, "Skipped (network unavailable)"},
			Check{"GitHub API", false, "Unreachable: " + info.Message}
	case github.StatusRateLimited:
		return Check{"Token Validation", true, "Skipped (rate limited)"},
			Check{"GitHub API", true, "Reachable (rate limited)"}
	default:
		return Check{"Token Validation", false, info.Message},
			Check{"GitHub API", true, "Reachable"}
	}
}

func (d *Doctor) checkKeyring() Check {
	if err := d.keyringProbe(); err != nil {
		return Check{"OS Keyring", false, fmt.Sprintf("Error: %v", err)}
	}
	return Check{"OS Keyring", true, "Accessible"}
}

// profileFiles lists the profile JSON basenames without extension.
func (d *Doctor) profileFiles() ([]string, error) {
	entries, err := os.ReadDir(d.cfg.ProfilesDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

func (d *Doctor) checkProfiles() Check {
	names, err := d.profileFiles()
	if err != nil {
		return Check{"Profiles", false, fmt.Sprintf("Error: %v", err)}
	}
	if len(names) == 0 {
		return Check{"Profiles", true, "No profiles configured"}
	}

	var invalid []string
	for _, name := range names {
		if _, err := d.profiles.Get(name); err != nil {
			invalid = append(invalid, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(invalid) > 0 {
		return Check{"Profiles", false, fmt.Sprintf("%d invalid: %s", len(invalid), invalid[0])}
	}
	return Check{"Profiles", true, fmt.Sprintf("%d valid", len(names))}
}

func (d *Doctor) checkSourceDirs() Check {
	names, err := d.profileFiles()
	if err != nil || len(names) == 0 {
		return Check{"Source Dirs", true, "No profiles to check"}
	}

	var missing []string
	for _, name := range names {
		p, err := d.profiles.Get(name)
		if err != nil {
			continue
		}
		info, err := os.Stat(p.SourceDir)
		if err != nil || !info.IsDir() {
			missing = append(missing, fmt.Sprintf("%s: %s", name, p.SourceDir))
		}
	}
	if len(missing) > 0 {
		return Check{"Source Dirs", false, fmt.Sprintf("%d missing: %s", len(missing), missing[0])}
	}
	return Check{"Source Dirs", true, "All source directories exist"}
}

func (d *Doctor) checkSigningKey() Check {
	if d.keypair.Exists() {
		return Check{"Signing Key", true, "Ed25519 keypair found"}
	}
	return Check{"Signing Key", true, "Not configured (optional)"}
}

func (d *Doctor) checkAuditLog() Check {
	path := d.cfg.AuditLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Check{"Audit Log", false, fmt.Sprintf("Not writable: %v", err)}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return Check{"Audit Log", false, fmt.Sprintf("Not writable: %v", err)}
	}
	f.Close()

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return Check{"Audit Log", true, "Writable (" + ui.Bytes(info.Size()) + ")"}
	}
	return Check{"Audit Log", true, path}
}

func (d *Doctor) checkTempFiles() Check {
	entries, err := os.ReadDir(d.cfg.TempDir())
	if os.IsNotExist(err) || (err == nil && len(entries) == 0) {
		return Check{"Temp Files", true, "Clean"}
	}
	if err != nil {
		return Check{"Temp Files", false, fmt.Sprintf("Error: %v", err)}
	}

	var total int64
	for _, entry := range entries {
		if info, err := entry.Info(); err == nil && !info.IsDir() {
			total += info.Size()
		}
	}
	return Check{"Temp Files", false,
		fmt.Sprintf("%d orphaned file(s) (%s) in %s", len(entries), ui.Bytes(total), d.cfg.TempDir())}
}

func (d *Doctor) checkHistoryDB(ctx context.Context) Check {
	path := d.cfg.HistoryDBPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Check{"History DB", true, "Not created yet"}
	}
	store, err := history.Open(path)
	if err != nil {
		return Check{"History DB", false, fmt.Sprintf("Error: %v", err)}
	}
	defer store.Close()
	ok, err := store.IntegrityCheck(ctx)
	if err != nil {
		return Check{"History DB", false, fmt.Sprintf("Integrity: %v", err)}
	}
	if !ok {
		return Check{"History DB", false, "Corruption detected"}
	}
	return Check{"History DB", true, "Integrity OK"}
}

func (d *Doctor) checkDiskSpace() Check {
	free, err := d.freeSpace(d.cfg.Paths.DataDir)
	if err != nil {
		return Check{"Disk Space", true, fmt.Sprintf("Could not check: %v", err)}
	}
	freeGB := float64(free) / (1 << 30)
	if free < lowDiskThreshold {
		return Check{"Disk Space", false, fmt.Sprintf("Low: %.1f GB free", freeGB)}
	}
	return Check{"Disk Space", true, fmt.Sprintf("%.1f GB free", freeGB)}
}

func freeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func titleWords(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "-", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
