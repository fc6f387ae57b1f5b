/**
 * @description
 * Script to trigger a lifecycle sweep by name against a running instance of
 * the service. Useful when a deadline was misconfigured and the affected
 * rows should be re-evaluated now instead of at the next scheduled run.
 *
 * Usage:
 *   go run trigger-sweep.go <job-name>
 *
 * Example:
 *   go run trigger-sweep.go donation_lifecycle
 *
 * @dependencies
 * - Go 1.19+
 * - Environment variables: INTERNAL_API_KEY, LIFECYCLE_API_BASE_URL
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// apiError represents an error response from the lifecycle API
type apiError struct {
	Error string `json:"error"`
}

// jobList represents the response of the sweep listing endpoint
type jobList struct {
	Jobs []struct {
		Job      string `json:"job"`
		Schedule string `json:"schedule"`
	} `json:"jobs"`
}

// sweepResult represents the outcome of one sweep run
type sweepResult struct {
	Job       string   `json:"job"`
	Found     int      `json:"found"`
	Processed int      `json:"processed"`
	Succeeded int      `json:"succeeded"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: go run trigger-sweep.go <job-name>")
		fmt.Println("Example: go run trigger-sweep.go donation_lifecycle")
		os.Exit(1)
	}

	job := os.Args[1]

	// Load environment variables from .env file if it exists
	loadEnvFile("../.env")
	loadEnvFile(".env")

	// Get environment variables
	apiKey := os.Getenv("INTERNAL_API_KEY")
	baseURL := os.Getenv("LIFECYCLE_API_BASE_URL")

	if apiKey == "" {
		log.Fatal("INTERNAL_API_KEY environment variable is required")
	}

	if baseURL == "" {
		baseURL = "http://localhost:8086" // Default to a local instance
		fmt.Println("Using default base URL:", baseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// First, list the registered jobs to validate the name
	jobs, err := listJobs(ctx, baseURL, apiKey)
	if err != nil {
		log.Fatalf("Failed to list sweep jobs: %v", err)
	}

	known := false
	for _, entry := range jobs.Jobs {
		if entry.Job == job {
			known = true
			break
		}
	}
	if !known {
		fmt.Printf("Unknown job %q. Registered jobs:\n", job)
		for _, entry := range jobs.Jobs {
			fmt.Printf("  %s (schedule %q)\n", entry.Job, entry.Schedule)
		}
		os.Exit(1)
	}

	// Confirm before touching live rows
	fmt.Printf("\nRun sweep %q against %s now? (yes/no): ", job, baseURL)
	var confirmation string
	fmt.Scanln(&confirmation)

	if confirmation != "yes" {
		fmt.Println("Sweep cancelled.")
		os.Exit(0)
	}

	// Trigger the sweep. It runs synchronously, so allow a generous timeout.
	fmt.Printf("Running sweep %s...\n", job)
	result, err := triggerSweep(baseURL, apiKey, job)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	fmt.Printf("\nSweep Result:\n")
	fmt.Printf("  Job: %s\n", result.Job)
	fmt.Printf("  Found: %d\n", result.Found)
	fmt.Printf("  Processed: %d\n", result.Processed)
	fmt.Printf("  Succeeded: %d\n", result.Succeeded)
	fmt.Printf("  Skipped: %d\n", result.Skipped)
	fmt.Printf("  Failed: %d\n", result.Failed)
	for _, e := range result.Errors {
		fmt.Printf("  Error: %s\n", e)
	}
}

// loadEnvFile loads environment variables from a .env file
func loadEnvFile(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		return // File doesn't exist, that's okay
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			// Remove quotes if present
			value = strings.Trim(value, "\"'")
			os.Setenv(key, value)
		}
	}
}

// listJobs fetches the registered sweep names
func listJobs(ctx context.Context, baseURL, apiKey string) (*jobList, error) {
	url := fmt.Sprintf("%s/internal/lifecycle/sweeps", baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Internal-API-Key", apiKey)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}

	var jobs jobList
	if err := json.Unmarshal(body, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &jobs, nil
}

// triggerSweep runs the named sweep and returns its result
func triggerSweep(baseURL, apiKey, job string) (*sweepResult, error) {
	url := fmt.Sprintf("%s/internal/lifecycle/sweeps/%s/run", baseURL, job)

	req, err := http.NewRequest("POST", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Internal-API-Key", apiKey)

	// Large backlogs take a while; the sweep responds only when done.
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp.StatusCode, body)
	}

	var result sweepResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &result, nil
}

// decodeError turns an error response into a readable error
func decodeError(status int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("lifecycle API error: %s (status %d)", apiErr.Error, status)
	}
	return fmt.Errorf("lifecycle API error with status %d: %s", status, string(body))
}
