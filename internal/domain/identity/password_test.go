package identity

import "testing"

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Abcdef1!", false},
		{"too short", "Ab1!xyz", true},
		{"no upper", "abcdef1!", true},
		{"no lower", "ABCDEF1!", true},
		{"no digit", "Abcdefg!", true},
		{"no punctuation", "Abcdefg1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		p, err := GeneratePassword()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(p) != initialPasswordLength {
			t.Fatalf("expected length %d, got %d", initialPasswordLength, len(p))
		}
		if err := ValidatePassword(p); err != nil {
			t.Errorf("generated password %q violates policy: %v", p, err)
		}
		if seen[p] {
			t.Errorf("duplicate generated password %q", p)
		}
		seen[p] = true
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Secret1!")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword(hash, "Secret1!") {
		t.Error("expected matching password to verify")
	}
	if CheckPassword(hash, "Wrong1!x") {
		t.Error("expected non-matching password to fail")
	}
}

func TestRolePrefixes(t *testing.T) {
	want := map[string]string{
		RolePhysician:          "MED",
		RoleNurse:              "INF",
		RoleLabTech:            "LAB",
		RoleReceptionist:       "REC",
		RoleCashier:            "CAI",
		RolePharmacist:         "PHA",
		RoleAccountant:         "CPT",
		RoleMaterialAccountant: "MAT",
		RoleDirector:           "DIR",
	}
	for role, prefix := range want {
		if got := RolePrefix(role); got != prefix {
			t.Errorf("RolePrefix(%s) = %s, want %s", role, got, prefix)
		}
	}
	if ValidRole("janitor") {
		t.Error("unexpected valid role")
	}
}
