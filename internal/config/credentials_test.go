package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantToken   string
		wantRefresh string
		wantErr     bool
	}{
		{"file format", `{"token":"abc","refresh_token":"r1"}`, "abc", "r1", false},
		{"browser storage format", `{"token":"abc","refreshToken":"r2"}`, "abc", "r2", false},
		{"token only", `{"token":"abc"}`, "abc", "", false},
		{"bare token", "eyJhbGciOi.payload.sig\n", "eyJhbGciOi.payload.sig", "", false},
		{"bearer prefixed", "Bearer xyz", "Bearer xyz", "", false},
		{"missing token", `{"refresh_token":"r"}`, "", "", true},
		{"invalid json", `{"token":`, "", "", true},
		{"empty", "  ", "", "", true},
		{"prose", "this is not a token", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := parseCredentials([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if creds.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", creds.Token, tt.wantToken)
			}
			if creds.RefreshToken != tt.wantRefresh {
				t.Errorf("RefreshToken = %q, want %q", creds.RefreshToken, tt.wantRefresh)
			}
		})
	}
}

func TestCredentials_AuthHeader(t *testing.T) {
	var nilCreds *Credentials
	if got := nilCreds.AuthHeader(); got != "" {
		t.Errorf("nil AuthHeader() = %q", got)
	}

	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"abc", "Bearer abc"},
		{" abc ", "Bearer abc"},
		{"Bearer abc", "Bearer abc"},
		{"bearer abc", "bearer abc"},
	}
	for _, tt := range tests {
		creds := &Credentials{Token: tt.token}
		if got := creds.AuthHeader(); got != tt.want {
			t.Errorf("AuthHeader(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestCredentials_SetTokens(t *testing.T) {
	creds := &Credentials{Token: "old"}
	creds.SetTokens("new", "refresh")
	if creds.GetToken() != "new" || creds.RefreshToken != "refresh" {
		t.Errorf("SetTokens() left %+v", creds)
	}
}

func TestValidateCredentials(t *testing.T) {
	if err := ValidateCredentials(nil); err == nil {
		t.Error("Expected error for nil credentials")
	}
	if err := ValidateCredentials(&Credentials{Token: "  "}); err == nil {
		t.Error("Expected error for blank token")
	}
	if err := ValidateCredentials(&Credentials{Token: "t"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestLoadCredentials_Missing(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())
	t.Setenv(EnvToken, "")

	_, err := LoadCredentials()
	if !errors.Is(err, ErrNoCredentials) {
		t.Errorf("LoadCredentials() error = %v, want ErrNoCredentials", err)
	}
}

func TestLoadCredentials_EnvWins(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)
	if err := SaveCredentials(&Credentials{Token: "from-file"}); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvToken, "from-env")

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if creds.Token != "from-env" {
		t.Errorf("Token = %q, want env value", creds.Token)
	}
}

func TestSaveAndLoadCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)
	t.Setenv(EnvToken, "")

	if err := SaveCredentials(&Credentials{Token: "tok", RefreshToken: "ref"}); err != nil {
		t.Fatalf("SaveCredentials() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "credentials.json"))
	if err != nil {
		t.Fatalf("credentials file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("credentials mode = %v, want 0600", info.Mode().Perm())
	}

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials() error = %v", err)
	}
	if creds.Token != "tok" || creds.RefreshToken != "ref" {
		t.Errorf("loaded %+v", creds)
	}

	if err := SaveCredentials(&Credentials{}); err == nil {
		t.Error("Expected error saving empty credentials")
	}
}

func TestImportCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)
	t.Setenv(EnvToken, "")

	source := filepath.Join(t.TempDir(), "token.json")
	if err := os.WriteFile(source, []byte(`{"token":"file-token"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := ImportCredentials(source)
	if err != nil {
		t.Fatalf("ImportCredentials(file) error = %v", err)
	}
	if creds.Token != "file-token" {
		t.Errorf("Token = %q", creds.Token)
	}

	creds, err = ImportCredentials("literal-token")
	if err != nil {
		t.Fatalf("ImportCredentials(literal) error = %v", err)
	}
	loaded, _ := LoadCredentials()
	if loaded.Token != "literal-token" || creds.Token != "literal-token" {
		t.Errorf("literal import not persisted: %+v", loaded)
	}

	if _, err := ImportCredentials("not a token at all"); err == nil {
		t.Error("Expected error for prose input")
	}
}
