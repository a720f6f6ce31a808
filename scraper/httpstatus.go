package scraper

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"repairshop-scraper/utils"
)

// CheckStatus returns nil for a 200 response. Server errors come back as
// retryable errors; any other status is permanent.
func CheckStatus(resp *http.Response, prefix string) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s: status %d: %s", prefix, resp.StatusCode, strings.TrimSpace(string(msg)))
	if resp.StatusCode >= http.StatusInternalServerError {
		return err
	}
	return utils.Permanent(err)
}

// SingleAttempt is the retry policy used when a client is given none.
func SingleAttempt(logger *utils.Logger) *utils.RetryConfig {
	return &utils.RetryConfig{MaxAttempts: 1, Logger: logger}
}
