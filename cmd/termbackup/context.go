package main

import (
	"os"
	"strings"
	"sync"

	"termbackup/internal/audit"
	"termbackup/internal/config"
	"termbackup/internal/credentials"
	"termbackup/internal/github"
	"termbackup/internal/profile"
	"termbackup/internal/signing"
	"termbackup/internal/tbkerr"
	"termbackup/internal/ui"
)

const appVersion = "6.0.0"

type commandContext struct {
	configFlag *string
	console    *ui.Console

	configOnce  sync.Once
	config      *config.Config
	configPath  string
	configFound bool
	configErr   error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		console:    ui.NewConsole(os.Stdout),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, found, err := config.Load(path)
		c.configPath = resolvedPath
		c.configFound = found
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// token resolves the GitHub token, preferring the keyring.
func (c *commandContext) token() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	token := credentials.ResolveToken(cfg.GitHub.Token)
	if strings.TrimSpace(token) == "" {
		return "", tbkerr.New(tbkerr.KindToken, "no GitHub token configured").
			WithHint("run 'termbackup update-token' or set github.token in the config file")
	}
	return token, nil
}

func (c *commandContext) client() (*github.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	return github.NewClient(token, github.WithBaseURL(cfg.GitHub.APIURL)), nil
}

func (c *commandContext) validator() (*github.Validator, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return github.NewValidator(cfg.GitHub.APIURL, nil), nil
}

func (c *commandContext) profiles() (*profile.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return profile.NewStore(cfg.ProfilesDir()), nil
}

func (c *commandContext) getProfile(name string) (*profile.Profile, error) {
	store, err := c.profiles()
	if err != nil {
		return nil, err
	}
	return store.Get(name)
}

func (c *commandContext) auditLog() (*audit.Log, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return audit.NewLog(cfg.AuditLogPath(), cfg.Audit.Enabled, nil), nil
}

func (c *commandContext) keypair() (signing.Keypair, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return signing.Keypair{}, err
	}
	return signing.Keypair{
		PrivatePath: cfg.SigningKeyPath(),
		PublicPath:  cfg.SigningPubPath(),
	}, nil
}
