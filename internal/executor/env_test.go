package executor

import "testing"

func TestBuildEnv_StripsParentEnv(t *testing.T) {
	t.Setenv("UNSAFE_VAR", "value")

	env := buildSecureEnv(map[string]string{"PATH": "/usr/bin", "ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS": "4"}, false)

	for _, e := range env {
		if len(e) >= len("UNSAFE_VAR=") && e[:len("UNSAFE_VAR=")] == "UNSAFE_VAR=" {
			t.Fatalf("unexpected unsafe env in secure env: %s", e)
		}
	}
	found := false
	for _, e := range env {
		if e == "ITK_GLOBAL_DEFAULT_NUMBER_OF_THREADS=4" {
			found = true
		}
	}
	if !found {
		t.Fatalf("configured variable missing from env: %v", env)
	}
}

func TestBuildSecureEnvAddsDefaultPath(t *testing.T) {
	t.Setenv("PATH", "/usr/local/bin")
	env := buildSecureEnv(nil, false)
	expect := "PATH=/usr/local/bin"
	found := false
	for _, e := range env {
		if e == expect {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected %s in env: %v", expect, env)
	}
}

func TestBuildSecureEnvPrefersConfigPath(t *testing.T) {
	env := buildSecureEnv(map[string]string{"PATH": "/custom/bin"}, true)
	count := 0
	for _, e := range env {
		if len(e) > 5 && e[:5] == "PATH=" {
			count++
			if e != "PATH=/custom/bin" {
				t.Fatalf("inherited PATH overrode configured one: %s", e)
			}
		}
	}
	if count != 1 {
		t.Fatalf("expected config PATH exactly once, got %d in %v", count, env)
	}
}

func TestBuildSecureEnvInheritHost(t *testing.T) {
	key := "INHERITED_VAR"
	val := "present"
	t.Setenv(key, val)

	env := buildSecureEnv(nil, true)
	found := false
	for _, e := range env {
		if e == key+"="+val {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected inherited env %s in %v", key, env)
	}
}

func TestUpsertEnvReplaces(t *testing.T) {
	env := upsertEnv([]string{"A=1", "B=2"}, "A", "3")
	if env[0] != "A=3" || len(env) != 2 {
		t.Fatalf("unexpected env %v", env)
	}
	env = upsertEnv(env, "C", "4")
	if env[2] != "C=4" {
		t.Fatalf("expected appended C, got %v", env)
	}
}

func TestSanitizeName(t *testing.T) {
	if got := sanitizeName("4F0b_Run:ID"); got != "4f0b-run-id" {
		t.Fatalf("unexpected name %s", got)
	}
	if got := sanitizeName("::"); got != "run" {
		t.Fatalf("expected fallback, got %s", got)
	}
}
