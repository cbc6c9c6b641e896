package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
)

const (
	reportFileName   = "report.md"
	manifestFileName = "report.yaml"
)

// emailRank orders page types for representative-email selection.
var emailRank = map[model.PageType]int{
	model.PageTypeContact: 0,
	model.PageTypeHome:    1,
}

// Compiler renders a per-business report artifact from persisted pages.
// Compilation is idempotent: the same business always writes to the same
// folder, and recompiling overwrites the previous artifact.
type Compiler struct {
	store store.Store
	root  string
}

// NewCompiler creates a Compiler writing under the given reports root.
func NewCompiler(st store.Store, root string) *Compiler {
	return &Compiler{store: st, root: root}
}

// reportManifest records which business owns a report folder, so folder
// name collisions between distinct businesses are detectable.
type reportManifest struct {
	BusinessID  string    `yaml:"business_id"`
	Fingerprint string    `yaml:"fingerprint"`
	Incomplete  bool      `yaml:"incomplete"`
	GeneratedAt time.Time `yaml:"generated_at"`
}

// Compile aggregates the business's pages into a markdown report and
// writes it to the deterministic per-business location. A business with
// zero pages still compiles, flagged incomplete.
func (c *Compiler) Compile(ctx context.Context, b model.Business) (*model.ReportArtifact, error) {
	pages, err := c.store.ListPages(ctx, b.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "report: list pages for %s", b.ID)
	}

	body := renderReport(b, pages)
	sum := sha256.Sum256([]byte(body))
	fingerprint := hex.EncodeToString(sum[:])
	incomplete := len(pages) == 0

	dir, err := c.resolveFolder(b)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "report: create folder %s", dir)
	}

	path := filepath.Join(dir, reportFileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return nil, eris.Wrapf(err, "report: write %s", path)
	}

	manifest := reportManifest{
		BusinessID:  b.ID,
		Fingerprint: fingerprint,
		Incomplete:  incomplete,
		GeneratedAt: time.Now().UTC(),
	}
	raw, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, eris.Wrap(err, "report: marshal manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFileName), raw, 0o644); err != nil {
		return nil, eris.Wrapf(err, "report: write manifest in %s", dir)
	}

	zap.L().Info("report: compiled",
		zap.String("business_id", b.ID),
		zap.String("path", path),
		zap.Int("pages", len(pages)),
		zap.Bool("incomplete", incomplete),
	)

	return &model.ReportArtifact{
		BusinessID:  b.ID,
		Path:        path,
		Fingerprint: fingerprint,
		Incomplete:  incomplete,
	}, nil
}

// resolveFolder returns the business's report folder, claiming an
// unowned folder atomically so concurrent compiles of identically named
// businesses cannot share one. A folder owned by another business gets
// the business id as a suffix.
func (c *Compiler) resolveFolder(b model.Business) (string, error) {
	name := SanitizeName(b.Name)
	if name == "" {
		name = b.ID
	}
	dir := filepath.Join(c.root, name)

	for {
		raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
		if err == nil {
			var manifest reportManifest
			if err := yaml.Unmarshal(raw, &manifest); err != nil || manifest.BusinessID != b.ID {
				// Unreadable or foreign manifest: the folder belongs to
				// another business.
				return filepath.Join(c.root, name+"-"+b.ID), nil
			}
			return dir, nil
		}
		if !os.IsNotExist(err) {
			return "", eris.Wrapf(err, "report: read manifest in %s", dir)
		}

		claimed, err := c.claimFolder(dir, b.ID)
		if err != nil {
			return "", err
		}
		if claimed {
			return dir, nil
		}
		// Lost the claim race; re-read the winner's manifest.
	}
}

// claimFolder creates the folder and its manifest with O_EXCL so exactly
// one business wins a given folder name. Returns false when another
// compile created the manifest first.
func (c *Compiler) claimFolder(dir, businessID string) (bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, eris.Wrapf(err, "report: create folder %s", dir)
	}

	f, err := os.OpenFile(filepath.Join(dir, manifestFileName), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, eris.Wrapf(err, "report: claim folder %s", dir)
	}
	defer f.Close() //nolint:errcheck

	raw, err := yaml.Marshal(reportManifest{BusinessID: businessID, GeneratedAt: time.Now().UTC()})
	if err != nil {
		return false, eris.Wrap(err, "report: marshal manifest")
	}
	if _, err := f.Write(raw); err != nil {
		return false, eris.Wrapf(err, "report: write manifest in %s", dir)
	}
	return true, nil
}

// SanitizeName normalizes a business name into a filesystem-safe folder
// token: diacritics stripped, lowercased, runs of non-alphanumerics
// collapsed to a single hyphen.
func SanitizeName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var sb strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(sb.String(), "-")
}

// aggregateSocialLinks consolidates links across pages in crawl order,
// first occurrence per platform wins.
func aggregateSocialLinks(pages []model.BusinessPage) []model.SocialLink {
	seen := make(map[string]bool)
	var links []model.SocialLink
	for _, p := range pages {
		for _, l := range p.SocialLinks {
			if seen[l.Platform] {
				continue
			}
			seen[l.Platform] = true
			links = append(links, l)
		}
	}
	return links
}

// representativeEmail picks the first non-empty email, preferring Contact
// pages, then Home, then the rest in crawl order.
func representativeEmail(pages []model.BusinessPage) string {
	ranked := make([]model.BusinessPage, len(pages))
	copy(ranked, pages)
	sort.SliceStable(ranked, func(i, j int) bool {
		return rankOf(ranked[i].PageType) < rankOf(ranked[j].PageType)
	})
	for _, p := range ranked {
		if p.Email != "" {
			return p.Email
		}
	}
	return ""
}

func rankOf(pt model.PageType) int {
	if r, ok := emailRank[pt]; ok {
		return r
	}
	return 2
}

func renderReport(b model.Business, pages []model.BusinessPage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Website Report: %s\n\n", b.Name)

	fmt.Fprintf(&sb, "## Business\n\n")
	fmt.Fprintf(&sb, "- ID: %s\n", b.ID)
	if b.Website != "" {
		fmt.Fprintf(&sb, "- Website: %s\n", b.Website)
	}
	if b.Phone != "" {
		fmt.Fprintf(&sb, "- Phone: %s\n", b.Phone)
	}
	if b.City != "" || b.State != "" {
		fmt.Fprintf(&sb, "- Location: %s %s\n", b.City, b.State)
	}
	if b.Rating > 0 {
		fmt.Fprintf(&sb, "- Rating: %.1f (%d reviews)\n", b.Rating, b.ReviewCount)
	}

	if len(pages) == 0 {
		sb.WriteString("\n## Coverage\n\nNo pages could be crawled for this business. ")
		sb.WriteString("This report is incomplete and low-confidence.\n")
		return sb.String()
	}

	degraded, contact := 0, 0
	for _, p := range pages {
		if p.Degraded {
			degraded++
		}
		if p.PageType == model.PageTypeContact {
			contact++
		}
	}
	fmt.Fprintf(&sb, "\n## Coverage\n\n- Pages crawled: %d\n- Pages degraded: %d\n- Contact pages: %d\n", len(pages), degraded, contact)

	if email := representativeEmail(pages); email != "" {
		fmt.Fprintf(&sb, "\n## Contact\n\n- Email: %s\n", email)
	}

	if socials := aggregateSocialLinks(pages); len(socials) > 0 {
		sb.WriteString("\n## Social Profiles\n\n")
		for _, l := range socials {
			fmt.Fprintf(&sb, "- %s: %s\n", l.Platform, l.URL)
		}
	}

	sb.WriteString("\n## Pages\n\n")
	sb.WriteString("| URL | Type | Score | TTI (ms) | Summary |\n")
	sb.WriteString("|-----|------|-------|----------|--------|\n")
	for _, p := range pages {
		score := "-"
		if p.PageSpeedScore != nil {
			score = fmt.Sprintf("%d", *p.PageSpeedScore)
		}
		tti := "-"
		if p.TimeToInteractiveMS != nil {
			tti = fmt.Sprintf("%d", *p.TimeToInteractiveMS)
		}
		summary := strings.ReplaceAll(p.Summary, "|", "\\|")
		fmt.Fprintf(&sb, "| %s | %s | %s | %s | %s |\n", p.URL, p.PageType, score, tti, summary)
	}

	return sb.String()
}
