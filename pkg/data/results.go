package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/gridpulse/pkg/attribution"
	"github.com/mchmarny/gridpulse/pkg/panel"
	"github.com/mchmarny/gridpulse/pkg/stress"
)

const (
	deleteStressSQL = `DELETE FROM stress_result`

	insertStressSQL = `INSERT INTO stress_result (
			run_id, region, month,
			cdd_monthly, congestion_usd_mwh, curtailment_mwh_month,
			z_cdd, z_congestion, z_curtailment,
			stress_score, rank_in_region, stress_flag
		) VALUES (
			:run_id, :region, :month,
			:cdd_monthly, :congestion_usd_mwh, :curtailment_mwh_month,
			:z_cdd, :z_congestion, :z_curtailment,
			:stress_score, :rank_in_region, :stress_flag
		)
	`

	selectStressSQL = `SELECT
			run_id, region, month,
			cdd_monthly, congestion_usd_mwh, curtailment_mwh_month,
			z_cdd, z_congestion, z_curtailment,
			stress_score, rank_in_region, stress_flag
		FROM stress_result
	`

	deleteAttributionSQL = `DELETE FROM attribution_result`

	insertAttributionSQL = `INSERT INTO attribution_result (
			run_id, region, n_obs, r2,
			beta_intercept, beta_natgas, beta_cdd,
			beta_natgas_std, beta_cdd_std,
			importance_natgas_pct, importance_cdd_pct
		) VALUES (
			:run_id, :region, :n_obs, :r2,
			:beta_intercept, :beta_natgas, :beta_cdd,
			:beta_natgas_std, :beta_cdd_std,
			:importance_natgas_pct, :importance_cdd_pct
		)
	`

	selectAttributionSQL = `SELECT
			run_id, region, n_obs, r2,
			beta_intercept, beta_natgas, beta_cdd,
			beta_natgas_std, beta_cdd_std,
			importance_natgas_pct, importance_cdd_pct
		FROM attribution_result
	`
)

type stressRow struct {
	RunID        string  `db:"run_id"`
	Region       string  `db:"region"`
	Month        string  `db:"month"`
	CDD          float64 `db:"cdd_monthly"`
	Congestion   float64 `db:"congestion_usd_mwh"`
	Curtailment  float64 `db:"curtailment_mwh_month"`
	ZCDD         float64 `db:"z_cdd"`
	ZCongestion  float64 `db:"z_congestion"`
	ZCurtailment float64 `db:"z_curtailment"`
	Score        float64 `db:"stress_score"`
	Rank         int     `db:"rank_in_region"`
	Flag         bool    `db:"stress_flag"`
}

type attributionRow struct {
	RunID               string          `db:"run_id"`
	Region              string          `db:"region"`
	Observations        int             `db:"n_obs"`
	R2                  sql.NullFloat64 `db:"r2"`
	BetaIntercept       float64         `db:"beta_intercept"`
	BetaNatGas          float64         `db:"beta_natgas"`
	BetaCDD             float64         `db:"beta_cdd"`
	BetaNatGasStd       float64         `db:"beta_natgas_std"`
	BetaCDDStd          float64         `db:"beta_cdd_std"`
	ImportanceNatGasPct float64         `db:"importance_natgas_pct"`
	ImportanceCDDPct    float64         `db:"importance_cdd_pct"`
}

// StressFilter narrows persisted stress results.
type StressFilter struct {
	Region  string
	Flagged bool
	Limit   int
}

// SaveStressResults replaces the stored stress results with rs and records
// the run, in one transaction.
func SaveStressResults(ctx context.Context, db *sqlx.DB, run *Run, rs []*stress.Result) error {
	if db == nil {
		return errDBNotInitialized
	}
	if run == nil {
		run = NewRun(RunKindStress)
	}
	run.Rows = len(rs)

	rows := make([]*stressRow, len(rs))
	for i, r := range rs {
		rows[i] = &stressRow{
			RunID:        run.ID,
			Region:       r.Region,
			Month:        r.Month.String(),
			CDD:          r.CDD,
			Congestion:   r.Congestion,
			Curtailment:  r.Curtailment,
			ZCDD:         r.ZCDD,
			ZCongestion:  r.ZCongestion,
			ZCurtailment: r.ZCurtailment,
			Score:        r.Score,
			Rank:         r.Rank,
			Flag:         r.Flag,
		}
	}

	return replace(ctx, db, run, deleteStressSQL, insertStressSQL, rows)
}

// SaveAttributionResults replaces the stored attribution results with the
// report's results and records the run, in one transaction.
func SaveAttributionResults(ctx context.Context, db *sqlx.DB, run *Run, rep *attribution.Report) error {
	if db == nil {
		return errDBNotInitialized
	}
	if rep == nil {
		return fmt.Errorf("attribution report required")
	}
	if run == nil {
		run = NewRun(RunKindAttribution)
	}
	run.Rows = len(rep.Results)
	run.Skipped = len(rep.Skipped)

	rows := make([]*attributionRow, len(rep.Results))
	for i, r := range rep.Results {
		row := &attributionRow{
			RunID:               run.ID,
			Region:              r.Region,
			Observations:        r.Observations,
			BetaIntercept:       r.BetaIntercept,
			BetaNatGas:          r.BetaNatGas,
			BetaCDD:             r.BetaCDD,
			BetaNatGasStd:       r.BetaNatGasStd,
			BetaCDDStd:          r.BetaCDDStd,
			ImportanceNatGasPct: r.ImportanceNatGasPct,
			ImportanceCDDPct:    r.ImportanceCDDPct,
		}
		if r.R2 != nil {
			row.R2 = sql.NullFloat64{Float64: *r.R2, Valid: true}
		}
		rows[i] = row
	}

	return replace(ctx, db, run, deleteAttributionSQL, insertAttributionSQL, rows)
}

func replace[T any](ctx context.Context, db *sqlx.DB, run *Run, deleteSQL, insertSQL string, rows []T) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, deleteSQL); err != nil {
		return fmt.Errorf("failed to clear previous results: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx, r); err != nil {
			return fmt.Errorf("failed to insert result %d: %w", i, err)
		}
	}

	if err := saveRun(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetStressResults returns persisted stress results in presentation order.
func GetStressResults(ctx context.Context, db *sqlx.DB, filter *StressFilter) ([]*stress.Result, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if filter == nil {
		filter = &StressFilter{}
	}

	var where []string
	var args []any
	if filter.Region != "" {
		where = append(where, "region = ?")
		args = append(args, filter.Region)
	}
	if filter.Flagged {
		where = append(where, "stress_flag = ?")
		args = append(args, true)
	}

	q := selectStressSQL
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY region, stress_score DESC, month"
	if filter.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	var rows []*stressRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to query stress results: %w", err)
	}

	list := make([]*stress.Result, 0, len(rows))
	for _, r := range rows {
		m, err := panel.ParseMonth(r.Month)
		if err != nil {
			return nil, fmt.Errorf("invalid stored result: %w", err)
		}
		list = append(list, &stress.Result{
			Record: stress.Record{
				Region:      r.Region,
				Month:       m,
				CDD:         r.CDD,
				Congestion:  r.Congestion,
				Curtailment: r.Curtailment,
			},
			ZCDD:         r.ZCDD,
			ZCongestion:  r.ZCongestion,
			ZCurtailment: r.ZCurtailment,
			Score:        r.Score,
			Rank:         r.Rank,
			Flag:         r.Flag,
		})
	}
	return list, nil
}

// GetAttributionResults returns persisted attribution results by region.
func GetAttributionResults(ctx context.Context, db *sqlx.DB, region string) ([]*attribution.Result, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}

	q := selectAttributionSQL
	var args []any
	if region != "" {
		q += " WHERE region = ?"
		args = append(args, region)
	}
	q += " ORDER BY region"

	var rows []*attributionRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("failed to query attribution results: %w", err)
	}

	list := make([]*attribution.Result, 0, len(rows))
	for _, r := range rows {
		res := &attribution.Result{
			Region:              r.Region,
			Observations:        r.Observations,
			BetaIntercept:       r.BetaIntercept,
			BetaNatGas:          r.BetaNatGas,
			BetaCDD:             r.BetaCDD,
			BetaNatGasStd:       r.BetaNatGasStd,
			BetaCDDStd:          r.BetaCDDStd,
			ImportanceNatGasPct: r.ImportanceNatGasPct,
			ImportanceCDDPct:    r.ImportanceCDDPct,
		}
		if r.R2.Valid {
			v := r.R2.Float64
			res.R2 = &v
		}
		list = append(list, res)
	}
	return list, nil
}
