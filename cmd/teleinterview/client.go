package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// ---------------------------------------------------------------------------
// start
// ---------------------------------------------------------------------------

var (
	startName       string
	startTitle      string
	startType       string
	startResumeFile string
	startJDFile     string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an interview",
	Long: `Start an interview session. Resume and job description are read from
plain-text files.

  teleinterview start --name "Ada Lovelace" --title "Backend Engineer" \
      --type technical --resume resume.txt --jd job.txt`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	resume, err := readOptionalFile(startResumeFile)
	if err != nil {
		return err
	}
	jd, err := readOptionalFile(startJDFile)
	if err != nil {
		return err
	}

	var resp struct {
		SessionID      string `json:"session_id"`
		FirstQuestion  string `json:"first_question"`
		TotalQuestions int    `json:"total_questions"`
	}
	err = doRequest(http.MethodPost, "/api/sessions", map[string]string{
		"candidate_name":       startName,
		"job_title":            startTitle,
		"interview_type":       startType,
		"resume_text":          resume,
		"job_description_text": jd,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s started (%d questions)\n", resp.SessionID, resp.TotalQuestions)
	fmt.Printf("Q1: %s\n", resp.FirstQuestion)
	return nil
}

// ---------------------------------------------------------------------------
// status / list
// ---------------------------------------------------------------------------

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's current state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var v model.StateView
		if err := doRequest(http.MethodGet, "/api/sessions/"+args[0], nil, &v); err != nil {
			return err
		}
		printState(&v)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		var views []model.StateView
		if err := doRequest(http.MethodGet, "/api/sessions", nil, &views); err != nil {
			return err
		}
		if len(views) == 0 {
			fmt.Println("No live sessions.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tPHASE\tQUESTION\tREMAINING")
		for _, v := range views {
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%ds\n", v.SessionID, v.Phase, v.CurrentQuestionNumber, v.TotalQuestions, v.RemainingSeconds)
		}
		return w.Flush()
	},
}

func printState(v *model.StateView) {
	fmt.Printf("Session:   %s\n", v.SessionID)
	fmt.Printf("Phase:     %s\n", v.Phase)
	if v.Phase == model.PhaseComplete {
		fmt.Printf("Questions: %d answered\n", v.TotalQuestions)
		return
	}
	fmt.Printf("Question:  %d of %d\n", v.CurrentQuestionNumber, v.TotalQuestions)
	fmt.Printf("Text:      %s\n", v.CurrentQuestionText)
	if v.RemainingSeconds > 0 {
		fmt.Printf("Remaining: %ds\n", v.RemainingSeconds)
	}
	if v.RepeatAllowed {
		fmt.Println("Repeat:    available")
	}
	if v.StopAllowed {
		fmt.Println("Stop:      available")
	}
	if v.PartialTranscript != "" {
		fmt.Printf("Preview:   %s\n", v.PartialTranscript)
	}
}

// ---------------------------------------------------------------------------
// repeat / stop
// ---------------------------------------------------------------------------

var repeatCmd = &cobra.Command{
	Use:   "repeat <session-id>",
	Short: "Hear the current question again (inside the repeat window)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Question string `json:"question"`
		}
		if err := doRequest(http.MethodPost, "/api/sessions/"+args[0]+"/repeat", nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Question)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Finish the current answer early",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := doRequest(http.MethodPost, "/api/sessions/"+args[0]+"/stop", nil, nil); err != nil {
			return err
		}
		fmt.Println("Recording stopped; the answer is being scored.")
		return nil
	},
}

// ---------------------------------------------------------------------------
// events
// ---------------------------------------------------------------------------

var eventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "Stream a session's events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, serverURL+"/api/sessions/"+args[0]+"/events", nil)
		if err != nil {
			return err
		}
		resp, err := (&http.Client{}).Do(req)
		if err != nil {
			return fmt.Errorf("connecting to server: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return responseError(resp)
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev model.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				continue
			}
			fmt.Printf("[%s] %-9s %s\n", ev.CreatedAt.Local().Format("15:04:05"), ev.Type, ev.Data)
			if ev.Type == model.EventComplete {
				return nil
			}
		}
		return scanner.Err()
	},
}

// ---------------------------------------------------------------------------
// results / save / history
// ---------------------------------------------------------------------------

var resultsCmd = &cobra.Command{
	Use:   "results <session-id>",
	Short: "Show the scored results of a completed interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res model.Results
		if err := doRequest(http.MethodGet, "/api/sessions/"+args[0]+"/results", nil, &res); err != nil {
			return err
		}
		fmt.Printf("%s — %s (%s)\n", res.CandidateName, res.JobTitle, res.InterviewType)
		fmt.Printf("Final score: %.2f/10 (%.1f%%)\n\n", res.FinalScore, res.Percentage)
		printRecords(res.QARecords)
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save <session-id>",
	Short: "Archive a completed interview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			InterviewID string `json:"interview_id"`
		}
		if err := doRequest(http.MethodPost, "/api/sessions/"+args[0]+"/save", nil, &resp); err != nil {
			return err
		}
		fmt.Printf("Saved as interview %s\n", resp.InterviewID)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history [interview-id]",
	Short: "List archived interviews, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			var rec model.InterviewRecord
			if err := doRequest(http.MethodGet, "/api/interviews/"+args[0], nil, &rec); err != nil {
				return err
			}
			fmt.Printf("%s — %s (%s), %.2f/10\n", rec.CandidateName, rec.JobTitle, rec.InterviewType, rec.FinalScore)
			fmt.Printf("Completed %s\n\n", rec.CompletedAt.Local().Format(time.RFC1123))
			printRecords(rec.Questions)
			return nil
		}

		var list []model.InterviewRecord
		if err := doRequest(http.MethodGet, "/api/interviews", nil, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No saved interviews.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCANDIDATE\tROLE\tTYPE\tSCORE\tSAVED")
		for _, rec := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n", rec.ID, rec.CandidateName, rec.JobTitle, rec.InterviewType, rec.FinalScore, rec.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func printRecords(records []model.QARecord) {
	for _, r := range records {
		fmt.Printf("Q%d. %s\n", r.Number, r.Question)
		answer := r.Answer
		if answer == "" {
			answer = "(no answer captured)"
		}
		fmt.Printf("    Answer:   %s\n", answer)
		fmt.Printf("    Score:    %.1f\n", r.Score)
		fmt.Printf("    Feedback: %s\n\n", r.Feedback)
	}
}

func init() {
	startCmd.Flags().StringVar(&startName, "name", "", "Candidate name (required)")
	startCmd.Flags().StringVar(&startTitle, "title", "", "Job title (required)")
	startCmd.Flags().StringVar(&startType, "type", "technical", "Interview type: technical or hr")
	startCmd.Flags().StringVar(&startResumeFile, "resume", "", "Path to the resume as plain text")
	startCmd.Flags().StringVar(&startJDFile, "jd", "", "Path to the job description as plain text")
	startCmd.MarkFlagRequired("name")
	startCmd.MarkFlagRequired("title")

	rootCmd.AddCommand(startCmd, statusCmd, listCmd, repeatCmd, stopCmd, eventsCmd, resultsCmd, saveCmd, historyCmd)
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

// doRequest sends a JSON request to the server and decodes the JSON reply
// into out when out is non-nil.
func doRequest(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func responseError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server error (%d)", resp.StatusCode)
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
