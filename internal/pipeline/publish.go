package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/store"
	"github.com/sells-group/prospect-cli/pkg/zoho"
)

// Publisher attaches compiled reports to the business's CRM lead, at most
// one copy per report fingerprint. The check-then-upload sequence is not
// atomic on the CRM side; concurrent publishes for the same lead can race
// to at most one duplicate, which the next run reports as already present.
type Publisher struct {
	store store.Store
	crm   zoho.Client
}

// NewPublisher creates a Publisher.
func NewPublisher(st store.Store, crm zoho.Client) *Publisher {
	return &Publisher{store: st, crm: crm}
}

// attachmentName derives the stable attachment file name that acts as the
// idempotency fingerprint on the lead. Two compilations with identical
// content produce the same name.
func attachmentName(artifact *model.ReportArtifact) string {
	return fmt.Sprintf("website-report-%s-%s.md", artifact.BusinessID, artifact.Fingerprint[:12])
}

// Publish ensures exactly one up-to-date copy of the report is attached
// to the business's lead. Returns the publish status and the lead id.
func (p *Publisher) Publish(ctx context.Context, b model.Business, artifact *model.ReportArtifact) (model.PublishStatus, string, error) {
	leadID, err := p.resolveLead(ctx, b)
	if err != nil {
		return model.PublishStatusFailed, "", err
	}

	name := attachmentName(artifact)
	attachments, err := p.crm.ListAttachments(ctx, leadID)
	if err != nil {
		return model.PublishStatusFailed, leadID, eris.Wrapf(err, "publish: list attachments for lead %s (business %s)", leadID, b.ID)
	}
	for _, att := range attachments {
		if att.FileName == name {
			zap.L().Info("publish: report already present",
				zap.String("business_id", b.ID),
				zap.String("lead_id", leadID),
				zap.String("attachment", name),
			)
			return model.PublishStatusAlreadyPresent, leadID, nil
		}
	}

	content, err := os.ReadFile(artifact.Path)
	if err != nil {
		return model.PublishStatusFailed, leadID, eris.Wrapf(err, "publish: read report %s", artifact.Path)
	}

	if err := p.crm.UploadAttachment(ctx, leadID, name, content); err != nil {
		return model.PublishStatusFailed, leadID, eris.Wrapf(err, "publish: upload to lead %s (business %s)", leadID, b.ID)
	}

	zap.L().Info("publish: report uploaded",
		zap.String("business_id", b.ID),
		zap.String("lead_id", leadID),
		zap.String("attachment", name),
	)
	return model.PublishStatusPublished, leadID, nil
}

// resolveLead finds or creates the CRM lead for a business. The lead id
// is backfilled onto the business row so subsequent runs skip the lookup.
func (p *Publisher) resolveLead(ctx context.Context, b model.Business) (string, error) {
	if b.ZohoLeadID != "" {
		return b.ZohoLeadID, nil
	}

	lead, err := p.crm.SearchLeadByCompany(ctx, b.Name)
	if err != nil {
		return "", eris.Wrapf(err, "publish: search lead for business %s", b.ID)
	}
	if lead != nil {
		if err := p.store.UpdateLeadID(ctx, b.ID, lead.ID); err != nil {
			return "", eris.Wrapf(err, "publish: backfill lead id for business %s", b.ID)
		}
		zap.L().Info("publish: matched existing lead",
			zap.String("business_id", b.ID),
			zap.String("lead_id", lead.ID),
		)
		return lead.ID, nil
	}

	leadID, err := p.crm.CreateLead(ctx, zoho.Lead{
		Company:    b.Name,
		LastName:   b.Name,
		Phone:      b.Phone,
		Website:    b.Website,
		City:       b.City,
		State:      b.State,
		Street:     b.Address,
		LeadSource: "Web Research",
		LeadStatus: "Not Contacted",
	})
	if err != nil {
		return "", eris.Wrapf(err, "publish: create lead for business %s", b.ID)
	}
	if err := p.store.UpdateLeadID(ctx, b.ID, leadID); err != nil {
		return "", eris.Wrapf(err, "publish: store lead id for business %s", b.ID)
	}

	zap.L().Info("publish: created lead",
		zap.String("business_id", b.ID),
		zap.String("lead_id", leadID),
	)
	return leadID, nil
}
