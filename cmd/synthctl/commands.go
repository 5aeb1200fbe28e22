package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sami3l/Synthetic-Data-Generation-Platform/pkg/domain"
)

type apiFunc func() (*client, error)

func newSpinner(suffix string) *spinner.Spinner {
	spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
	spin.Suffix = " " + suffix
	return spin
}

func generationPath(id string, suffix string) string {
	return "/v1/synth/generations/" + url.PathEscape(id) + suffix
}

func uploadCmd(api apiFunc, ui *ui) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload a CSV dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			bar := progressbar.DefaultBytes(st.Size(), "uploading")
			resp, err := c.do(http.MethodPost, "/v1/synth/datasets?name="+url.QueryEscape(name), "text/csv", io.TeeReader(f, bar))
			_ = bar.Finish()
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			var out struct {
				Key     string   `json:"key"`
				Rows    int      `json:"rows"`
				Columns []string `json:"columns"`
			}
			if err := decode(resp, &out); err != nil {
				return err
			}
			fmt.Printf("%s Dataset uploaded: %s (%d rows, %d columns)\n", ui.ok("[OK]"), out.Key, out.Rows, len(out.Columns))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Dataset display name")
	return cmd
}

// parseParams turns name=value pairs into a JSON hyperparameter object.
// Values that parse as numbers are sent as numbers.
func parseParams(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", p)
		}
		value = strings.TrimSpace(value)
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			out[name] = f
		} else {
			out[name] = value
		}
	}
	return out, nil
}

// loadSearchSpace reads a YAML or JSON file holding {params: [...]}.
func loadSearchSpace(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var space map[string]any
	if err := yaml.Unmarshal(raw, &space); err != nil {
		return nil, fmt.Errorf("parse search space: %w", err)
	}
	if _, ok := space["params"]; !ok {
		return nil, errors.New("search space file must contain a 'params' list")
	}
	return space, nil
}

func generateCmd(api apiFunc, defaults *profile, ui *ui) *cobra.Command {
	var (
		dataset        string
		modelType      string
		samples        int
		params         []string
		method         string
		trials         int
		optimizeParams []string
		acquisition    string
		timeoutSecs    int
		parallelism    int
		seed           int64
		spaceFile      string
		wait           bool
	)
	cmd := &cobra.Command{
		Use:     "generate",
		Short:   "Submit a generation request",
		Example: "synthctl generate --dataset datasets/u1/abc.csv --model ctgan --samples 1000 --method grid --trials 5 --optimize epochs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dataset) == "" {
				return errors.New("--dataset is required")
			}
			c, err := api()
			if err != nil {
				return err
			}
			hp, err := parseParams(params)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("model") && defaults.DefaultModel != "" {
				modelType = defaults.DefaultModel
			}
			body := map[string]any{
				"datasetKey": dataset,
				"modelType":  modelType,
				"sampleSize": samples,
			}
			if len(hp) > 0 {
				body["hyperparameters"] = hp
			}
			if method != "" {
				opt := map[string]any{
					"method":         method,
					"nTrials":        trials,
					"optimizeParams": optimizeParams,
					"acquisition":    acquisition,
					"timeoutSeconds": timeoutSecs,
					"parallelism":    parallelism,
					"seed":           seed,
				}
				if spaceFile != "" {
					space, err := loadSearchSpace(spaceFile)
					if err != nil {
						return err
					}
					opt["searchSpace"] = space
				}
				body["mode"] = string(domain.ModeOptimization)
				body["optimization"] = opt
			}

			spin := newSpinner("Submitting request...")
			spin.Start()
			var out domain.GenerationRequest
			err = c.request(http.MethodPost, "/v1/synth/generations", body, &out)
			spin.Stop()
			if err != nil {
				return err
			}
			fmt.Printf("%s Request submitted: %s (%s, %s)\n", ui.ok("[OK]"), out.ID, out.Family, out.Mode)
			if !wait {
				return nil
			}
			return waitFor(c, ui, out.ID, 2*time.Second)
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "Dataset key returned by upload")
	cmd.Flags().StringVar(&modelType, "model", string(domain.FamilyCTGAN), "Model family: ctgan|tvae")
	cmd.Flags().IntVar(&samples, "samples", 1000, "Number of synthetic rows")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Hyperparameter name=value (repeatable)")
	cmd.Flags().StringVar(&method, "method", "", "Search method grid|random|bayesian (enables optimization)")
	cmd.Flags().IntVar(&trials, "trials", 10, "Trial budget")
	cmd.Flags().StringSliceVar(&optimizeParams, "optimize", nil, "Parameters to search (default: family defaults)")
	cmd.Flags().StringVar(&acquisition, "acquisition", "", "Bayesian acquisition ei|ucb|pi")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "Search timeout in seconds")
	cmd.Flags().IntVar(&parallelism, "parallelism", 1, "Concurrent trials")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Search seed")
	cmd.Flags().StringVar(&spaceFile, "space", "", "Search space file (YAML or JSON)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the request to finish")
	return cmd
}

func printRequest(ui *ui, r *domain.GenerationRequest) {
	status := string(r.Status)
	switch r.Status {
	case domain.StatusCompleted:
		status = ui.ok(status)
	case domain.StatusFailed:
		status = ui.err(status)
	case domain.StatusCancelled:
		status = ui.warn(status)
	default:
		status = ui.info(status)
	}
	fmt.Printf("%s %s\n", ui.title(r.ID), status)
	fmt.Printf("  dataset:  %s\n", r.DatasetName)
	fmt.Printf("  model:    %s  mode: %s  samples: %d\n", r.Family, r.Mode, r.SampleSize)
	if r.QualityScore != nil {
		fmt.Printf("  score:    %.4f  optimized: %v\n", *r.QualityScore, r.Optimized)
	}
	if r.FinalHyperparameters.Len() > 0 {
		fmt.Printf("  params:   %s\n", r.FinalHyperparameters)
	}
	if r.Error != "" {
		fmt.Printf("  error:    %s (%s)\n", r.Error, r.ErrorKind)
	}
	fmt.Println(ui.dim("  created " + r.CreatedAt.Local().Format(time.RFC3339)))
}

func statusCmd(api apiFunc, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a generation request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			var out domain.GenerationRequest
			if err := c.request(http.MethodGet, generationPath(args[0], ""), nil, &out); err != nil {
				return err
			}
			printRequest(ui, &out)
			return nil
		},
	}
}

// waitFor polls a request until it reaches a terminal status. Optimization
// requests show trial progress.
func waitFor(c *client, ui *ui, id string, every time.Duration) error {
	spin := newSpinner("Waiting...")
	spin.Start()
	var bar *progressbar.ProgressBar
	defer func() {
		spin.Stop()
		if bar != nil {
			_ = bar.Finish()
		}
	}()

	for {
		var req domain.GenerationRequest
		if err := c.request(http.MethodGet, generationPath(id, ""), nil, &req); err != nil {
			return err
		}
		spin.Suffix = " " + string(req.Status)
		if req.Mode == domain.ModeOptimization && req.Status == domain.StatusProcessing {
			var run domain.SearchRun
			if err := c.request(http.MethodGet, generationPath(id, "/optimization"), nil, &run); err == nil && run.RequestedTrials > 0 {
				if bar == nil {
					spin.Stop()
					bar = progressbar.NewOptions(run.RequestedTrials,
						progressbar.OptionSetDescription("trials"),
						progressbar.OptionSetWidth(24),
						progressbar.OptionShowCount(),
					)
				}
				_ = bar.Set(run.Attempted)
			}
		}
		if req.Status.IsTerminal() {
			spin.Stop()
			if bar != nil {
				_ = bar.Finish()
				bar = nil
				fmt.Println()
			}
			printRequest(ui, &req)
			if req.Status != domain.StatusCompleted {
				return fmt.Errorf("request %s", req.Status)
			}
			return nil
		}
		time.Sleep(every)
	}
}

func waitCmd(api apiFunc, ui *ui) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Wait until a request finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			return waitFor(c, ui, args[0], interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval")
	return cmd
}

func trialsCmd(api apiFunc, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "trials <id>",
		Short: "Show the optimization trial log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			var run domain.SearchRun
			if err := c.request(http.MethodGet, generationPath(args[0], "/optimization"), nil, &run); err != nil {
				return err
			}
			fmt.Printf("%s %s  %d/%d trials (%d completed, %d failed)\n",
				ui.title(string(run.Method)), run.Status, run.Attempted, run.RequestedTrials, run.Completed, run.Failed)
			for _, t := range run.Trials {
				mark := "  "
				if t.Number == run.BestTrial {
					mark = ui.ok("* ")
				}
				score := ui.err("failed")
				if t.Score != nil {
					score = fmt.Sprintf("%.4f", *t.Score)
				}
				fmt.Printf("%s#%-3d %-8s %s\n", mark, t.Number, score, t.Hyperparameters)
				if t.Error != "" {
					fmt.Println(ui.dim("       " + t.Error))
				}
			}
			if run.TimedOut {
				fmt.Println(ui.warn("[WARN]"), "search stopped at its timeout")
			}
			return nil
		},
	}
}

func cancelCmd(api apiFunc, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			var out domain.GenerationRequest
			if err := c.request(http.MethodDelete, generationPath(args[0], ""), nil, &out); err != nil {
				return err
			}
			fmt.Printf("%s Request %s is %s\n", ui.ok("[OK]"), out.ID, out.Status)
			return nil
		},
	}
}

func retryCmd(api apiFunc, ui *ui) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Resubmit a failed or cancelled request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			var out domain.GenerationRequest
			if err := c.request(http.MethodPost, generationPath(args[0], "/retry"), nil, &out); err != nil {
				return err
			}
			fmt.Printf("%s Retry submitted: %s\n", ui.ok("[OK]"), out.ID)
			return nil
		},
	}
}

func downloadCmd(api apiFunc, defaults *profile, ui *ui) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the synthetic dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			var link struct {
				URL       string    `json:"url"`
				ExpiresAt time.Time `json:"expiresAt"`
			}
			if err := c.request(http.MethodGet, generationPath(args[0], "/download"), nil, &link); err != nil {
				return err
			}
			resp, err := c.httpClient.Get(link.URL)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return decode(resp, nil)
			}
			if output == "" {
				output = filepath.Join(defaults.DownloadDir, args[0]+".csv")
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			bar := progressbar.DefaultBytes(resp.ContentLength, "downloading")
			if _, err := io.Copy(io.MultiWriter(f, bar), resp.Body); err != nil {
				return err
			}
			_ = bar.Finish()
			fmt.Printf("%s Saved %s\n", ui.ok("[OK]"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <id>.csv)")
	return cmd
}

func listCmd(api apiFunc, ui *ui) *cobra.Command {
	var (
		status   string
		page     int
		pageSize int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your generation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			q.Set("page", strconv.Itoa(page))
			q.Set("pageSize", strconv.Itoa(pageSize))
			var out struct {
				Items []*domain.GenerationRequest `json:"items"`
				Total int                         `json:"total"`
			}
			if err := c.request(http.MethodGet, "/v1/synth/generations?"+q.Encode(), nil, &out); err != nil {
				return err
			}
			for _, r := range out.Items {
				score := "-"
				if r.QualityScore != nil {
					score = fmt.Sprintf("%.4f", *r.QualityScore)
				}
				fmt.Printf("%s  %-10s %-5s %-12s %-7s %s\n", r.ID, r.Status, r.Family, r.Mode, score, ui.dim(r.CreatedAt.Local().Format(time.RFC3339)))
			}
			fmt.Println(ui.dim(fmt.Sprintf("%d of %d", len(out.Items), out.Total)))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "Page size")
	return cmd
}

func notificationsCmd(api apiFunc, ui *ui) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show your notification inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := api()
			if err != nil {
				return err
			}
			var out struct {
				Items []domain.Notification `json:"items"`
			}
			if err := c.request(http.MethodGet, "/v1/synth/notifications?limit="+strconv.Itoa(limit), nil, &out); err != nil {
				return err
			}
			for _, n := range out.Items {
				kind := ui.info(string(n.Kind))
				switch n.Kind {
				case domain.NotifyCompleted:
					kind = ui.ok(string(n.Kind))
				case domain.NotifyFailed:
					kind = ui.err(string(n.Kind))
				case domain.NotifyCancelled:
					kind = ui.warn(string(n.Kind))
				}
				fmt.Printf("%s %s %s %s\n", ui.dim(n.CreatedAt.Local().Format(time.RFC3339)), kind, n.RequestID, n.Message)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum notifications")
	return cmd
}
