package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type practiceSettings struct {
	Name                string   `json:"name"`
	Timezone            string   `json:"timezone"`
	Doctors             []string `json:"doctors"`
	SlotTimes           []string `json:"slot_times"`
	SlotDurationMinutes int      `json:"slot_duration_minutes"`
	MaxBookingsPerSlot  int      `json:"max_bookings_per_slot"`
}

type bulkGenerateRequest struct {
	StartDate string   `json:"startDate"`
	Days      int      `json:"days"`
	Doctors   []string `json:"doctors"`
	Times     []string `json:"times"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/seed-schedule.go <start-date> [days]")
		fmt.Println("Example: go run scripts/seed-schedule.go 2025-06-02 14")
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	staffToken := strings.TrimSpace(os.Getenv("STAFF_TOKEN"))
	if staffToken == "" {
		fmt.Println("❌ STAFF_TOKEN must be set (staff bearer token for /timeslots and /practice)")
		os.Exit(1)
	}

	startDate := os.Args[1]
	if _, err := time.Parse("2006-01-02", startDate); err != nil {
		fmt.Printf("❌ Invalid start date %q: expected YYYY-MM-DD\n", startDate)
		os.Exit(1)
	}
	days := 14
	if len(os.Args) > 2 {
		if _, err := fmt.Sscanf(os.Args[2], "%d", &days); err != nil || days < 1 {
			fmt.Printf("❌ Invalid days %q\n", os.Args[2])
			os.Exit(1)
		}
	}

	settings := practiceSettings{
		Name:     "BrightSmile Dental",
		Timezone: "America/New_York",
		Doctors:  []string{"Dr. Smith", "Dr. Johnson", "Dr. Lee"},
		SlotTimes: []string{
			"8:00 AM", "9:00 AM", "10:00 AM", "11:00 AM",
			"1:00 PM", "2:00 PM", "3:00 PM", "4:00 PM",
		},
		SlotDurationMinutes: 30,
		MaxBookingsPerSlot:  1,
	}

	fmt.Printf("🌱 Seeding Demo Schedule\n")
	fmt.Printf("============================\n")
	fmt.Printf("API URL: %s\n", apiURL)
	fmt.Printf("Start date: %s (%d days)\n", startDate, days)
	fmt.Printf("Doctors: %s\n\n", strings.Join(settings.Doctors, ", "))

	ctx := context.Background()
	client := &http.Client{Timeout: 30 * time.Second}

	// Write the practice settings document
	fmt.Printf("⚙️  Updating practice settings...\n")
	status, body, err := send(ctx, client, http.MethodPut, apiURL+"/practice/settings", staffToken, settings)
	if err != nil {
		fmt.Printf("   ❌ Error: %v\n", err)
		os.Exit(1)
	}
	if status != http.StatusOK {
		fmt.Printf("   ❌ Failed (status %d): %s\n", status, body)
		os.Exit(1)
	}
	fmt.Printf("   ✅ Settings saved\n\n")

	// Generate the slot grid
	fmt.Printf("📅 Generating time slots...\n")
	bulk := bulkGenerateRequest{
		StartDate: startDate,
		Days:      days,
		Doctors:   settings.Doctors,
		Times:     settings.SlotTimes,
	}
	status, body, err = send(ctx, client, http.MethodPost, apiURL+"/timeslots/bulk", staffToken, bulk)
	if err != nil {
		fmt.Printf("   ❌ Error: %v\n", err)
		os.Exit(1)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		fmt.Printf("   ❌ Failed (status %d): %s\n", status, body)
		os.Exit(1)
	}
	var result struct {
		Created int `json:"created"`
		Skipped int `json:"skipped"`
	}
	if err := json.Unmarshal([]byte(body), &result); err == nil {
		fmt.Printf("   ✅ Created %d slots (%d already existed)\n", result.Created, result.Skipped)
	} else {
		fmt.Printf("   ✅ Success! (status code: %d)\n", status)
	}

	fmt.Printf("\n✅ Schedule seeding complete!\n")
	fmt.Printf("\n📝 Next steps:\n")
	fmt.Printf("  1. List availability: curl %s/timeslots/%s\n", apiURL, startDate)
	fmt.Printf("  2. Book a visit: curl -H 'Authorization: Bearer <patient-token>' %s/appointments -d '{\"doctorName\":\"Dr. Smith\",\"treatmentType\":\"cleaning\",\"appointmentDate\":\"%s\",\"appointmentTime\":\"9:00 AM\"}'\n", apiURL, startDate)
	fmt.Printf("  3. Try quick-book: curl -H 'Authorization: Bearer <patient-token>' %s/quickbook -d '{\"treatmentType\":\"checkup\"}'\n", apiURL)
}

func send(ctx context.Context, client *http.Client, method, url, token string, payload any) (int, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, "", err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), nil
}
