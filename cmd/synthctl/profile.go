package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

const defaultProfile = "default"

// profile is one named API target. DefaultModel and DownloadDir seed the
// generate and download flags when those are not given.
type profile struct {
	BaseURL      string `yaml:"baseUrl"`
	Token        string `yaml:"token,omitempty"`
	DefaultModel string `yaml:"defaultModel,omitempty"`
	DownloadDir  string `yaml:"downloadDir,omitempty"`
}

type profileFile struct {
	Current  string             `yaml:"current"`
	Profiles map[string]profile `yaml:"profiles"`
}

// profileStore is the YAML file under ~/.synthctl (or $SYNTHCTL_CONFIG_DIR).
type profileStore struct {
	path string
	file profileFile
}

func profilePath() string {
	if dir := strings.TrimSpace(os.Getenv("SYNTHCTL_CONFIG_DIR")); dir != "" {
		return filepath.Join(dir, "config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".synthctl", "config.yaml")
	}
	return "synthctl.yaml"
}

// openProfiles reads the store. A missing file is an empty store.
func openProfiles() (*profileStore, error) {
	s := &profileStore{path: profilePath(), file: profileFile{Profiles: map[string]profile{}}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if s.file.Profiles == nil {
		s.file.Profiles = map[string]profile{}
	}
	return s, nil
}

// active resolves the profile name from the flag, then $SYNTHCTL_PROFILE,
// then the stored current profile.
func (s *profileStore) active(flag string) (string, profile) {
	name := strings.TrimSpace(flag)
	if name == "" {
		name = strings.TrimSpace(os.Getenv("SYNTHCTL_PROFILE"))
	}
	if name == "" {
		name = s.file.Current
	}
	if name == "" {
		name = defaultProfile
	}
	return name, s.file.Profiles[name]
}

func (s *profileStore) put(name string, p profile, makeCurrent bool) {
	s.file.Profiles[name] = p
	if makeCurrent || s.file.Current == "" {
		s.file.Current = name
	}
}

// save writes a temp file beside the store and renames it into place.
func (s *profileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(s.file)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".config-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter() *prompter {
	return &prompter{in: bufio.NewReader(os.Stdin), out: os.Stdout}
}

func (p *prompter) line(label, def string) string {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	v, _ := p.in.ReadString('\n')
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

// secret reads without echo on a terminal and falls back to a plain line
// when stdin is piped.
func (p *prompter) secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	defer fmt.Fprintln(p.out)
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		return strings.TrimSpace(string(b)), err
	}
	v, err := p.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return strings.TrimSpace(v), err
}

func redact(token string) string {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
		return "<unset>"
	case len(token) <= 8:
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
