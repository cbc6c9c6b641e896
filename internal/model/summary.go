package model

// CrawlOutcome reports, per business, how the crawl step went. Partial
// success is the normal outcome: degraded pages still produce rows.
type CrawlOutcome struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Degraded  int `json:"degraded"`
	Skipped   int `json:"skipped"`
}

// PublishStatus is the outcome of the CRM publication step.
type PublishStatus string

const (
	PublishStatusPublished      PublishStatus = "published"
	PublishStatusAlreadyPresent PublishStatus = "already_present"
	PublishStatusFailed         PublishStatus = "failed"
	PublishStatusSkipped        PublishStatus = "skipped"
)

// ReportArtifact locates a compiled report on disk.
type ReportArtifact struct {
	BusinessID  string `json:"business_id"`
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Incomplete  bool   `json:"incomplete"`
}

// BusinessResult is the per-business entry in the end-of-run summary.
type BusinessResult struct {
	BusinessID   string        `json:"business_id"`
	BusinessName string        `json:"business_name"`
	Crawl        CrawlOutcome  `json:"crawl"`
	CrawlError   string        `json:"crawl_error,omitempty"`
	ReportPath   string        `json:"report_path,omitempty"`
	ReportError  string        `json:"report_error,omitempty"`
	Publish      PublishStatus `json:"publish,omitempty"`
	PublishError string        `json:"publish_error,omitempty"`
	LeadID       string        `json:"lead_id,omitempty"`
}

// RunSummary enumerates per-business outcomes for operator visibility.
type RunSummary struct {
	Results []BusinessResult `json:"results"`
}

// Counts tallies the summary by outcome for logging.
func (s *RunSummary) Counts() (crawled, crawlFailed, published, present, publishFailed int) {
	for _, r := range s.Results {
		if r.CrawlError != "" {
			crawlFailed++
		} else {
			crawled++
		}
		switch r.Publish {
		case PublishStatusPublished:
			published++
		case PublishStatusAlreadyPresent:
			present++
		case PublishStatusFailed:
			publishFailed++
		}
	}
	return
}
