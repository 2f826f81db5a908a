package integration

import (
	"fmt"
	"time"
)

// TestPhone generates a unique Egyptian-format test phone number
func TestPhone(suffix int) string {
	ts := time.Now().Unix() % 1000000
	return fmt.Sprintf("+2010%06d%02d", ts, suffix%100)
}

// TestPassword is the default password used for seeded test users
const TestPassword = "TestPassword123!"
