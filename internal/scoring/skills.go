package scoring

import (
	"context"

	"github.com/spigell/jobmatch/internal/domain"
	"github.com/spigell/jobmatch/internal/records"
)

const (
	ModeJobSpecific = "job_specific"
	ModeGeneral     = "general"
	SourceCached    = "cached"

	maxReportedSkills = 7
)

type SkillReport struct {
	Mode    string              `json:"mode"`
	Source  string              `json:"source"`
	Summary string              `json:"summary"`
	Skills  []domain.SkillScore `json:"skills"`
}

// AnalyzeSkills returns the skill breakdown cached by fit scoring. It never calls the oracle.
// When the user has no application for jobID, any application to the company is used.
func (p *Pipeline) AnalyzeSkills(ctx context.Context, companyID, userID, jobID string) (*SkillReport, error) {
	if _, err := p.records.Company(ctx, companyID); err != nil {
		return nil, err
	}

	app, err := p.findApplication(ctx, records.Filter{CompanyID: companyID, JobID: jobID, UserID: userID})
	if err != nil {
		return nil, err
	}
	if app == nil && jobID != "" {
		app, err = p.findApplication(ctx, records.Filter{CompanyID: companyID, UserID: userID})
		if err != nil {
			return nil, err
		}
	}
	if app == nil {
		return nil, &domain.NotFoundError{Kind: "candidate", ID: userID}
	}

	mode := ModeGeneral
	if jobID != "" {
		if _, err := p.records.Job(ctx, jobID); err == nil {
			mode = ModeJobSpecific
		}
	}

	if len(app.SkillAnalysis) == 0 || app.SkillAnalysisSummary == "" {
		return nil, &domain.NotScoredError{UserID: userID, JobID: jobID}
	}

	skills := app.SkillAnalysis
	if len(skills) > maxReportedSkills {
		skills = skills[:maxReportedSkills]
	}
	return &SkillReport{
		Mode:    mode,
		Source:  SourceCached,
		Summary: app.SkillAnalysisSummary,
		Skills:  append([]domain.SkillScore(nil), skills...),
	}, nil
}

func (p *Pipeline) findApplication(ctx context.Context, f records.Filter) (*domain.Application, error) {
	apps, err := p.records.Applications(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, nil
	}
	return &apps[0], nil
}
