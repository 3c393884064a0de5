package auth

import (
	"os"
	"testing"
)

func TestInitSecretRequiresEnv(t *testing.T) {
	os.Unsetenv("JWT_SECRET")
	jwtSecret = nil
	if err := InitSecret(); err == nil {
		t.Error("Expected error when JWT_SECRET is not set")
	}

	os.Setenv("JWT_SECRET", "test-secret")
	defer os.Unsetenv("JWT_SECRET")
	if err := InitSecret(); err != nil {
		t.Fatalf("InitSecret: %v", err)
	}
}

func TestDeviceTokenRoundTrip(t *testing.T) {
	SetSecretForTest("test-secret")

	token, err := GenerateDeviceToken("device-123")
	if err != nil {
		t.Fatalf("GenerateDeviceToken: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.DeviceID != "device-123" {
		t.Errorf("DeviceID = %q, want device-123", claims.DeviceID)
	}
	if claims.Role != "device" {
		t.Errorf("Role = %q, want device", claims.Role)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	SetSecretForTest("test-secret")
	if _, err := ValidateToken("not-a-token"); err == nil {
		t.Error("Expected error for malformed token")
	}

	// token signed with a different secret
	SetSecretForTest("other-secret")
	token, err := GenerateDeviceToken("device-123")
	if err != nil {
		t.Fatalf("GenerateDeviceToken: %v", err)
	}
	SetSecretForTest("test-secret")
	if _, err := ValidateToken(token); err == nil {
		t.Error("Expected error for token signed with wrong secret")
	}
}
