package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"churn-metrics/pkg/apperrors"
	"churn-metrics/pkg/calculator"
	"churn-metrics/pkg/loader"
	"churn-metrics/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/schollz/progressbar/v3"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"

	pingTimeout = 5 * time.Second
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// DB is an open customer source together with the driver it speaks.
type DB struct {
	*sql.DB
	Driver string
}

// Open accepts mariadb://, mysql://, postgres:// or postgresql:// URLs, or a native MySQL DSN.
func Open(ctx context.Context, dsn string) (*DB, string, error) {
	driver, native, err := resolveDSN(dsn)
	if err != nil {
		return nil, "", err
	}
	db, err := sql.Open(driver, native)
	if err != nil {
		return nil, "", apperrors.Wrap(err, apperrors.CodeInvalidInput, "open "+driver)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, "", apperrors.Wrap(err, apperrors.CodeUnavailable, "ping "+driver)
	}
	return &DB{DB: db, Driver: driver}, redact(native), nil
}

func resolveDSN(dsn string) (driver, native string, err error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn, nil
	default:
		native, err := toMySQLDSN(dsn)
		if err != nil {
			return "", "", err
		}
		return DriverMySQL, native, nil
	}
}

func toMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(dsn, "mariadb://") || strings.HasPrefix(dsn, "mysql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", apperrors.Wrap(err, apperrors.CodeInvalidInput, "parse dsn")
		}
		user := ""
		pass := ""
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
		}
		host := u.Host
		db := strings.TrimPrefix(u.Path, "/")
		if user == "" || host == "" || db == "" {
			return "", apperrors.New(apperrors.CodeInvalidInput, "incomplete dsn (user/host/db)")
		}
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&interpolateParams=true",
			user, pass, host, db), nil
	}
	if dsn == "" {
		return "", apperrors.New(apperrors.CodeInvalidInput, "empty dsn")
	}
	return dsn, nil
}

// redact hides the password for logging.
func redact(native string) string {
	if u, err := url.Parse(native); err == nil && u.User != nil && u.Scheme != "" {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
		return u.String()
	}
	if at := strings.Index(native, "@"); at > 0 {
		if colon := strings.Index(native[:at], ":"); colon >= 0 {
			return native[:colon+1] + "xxxxx" + native[at:]
		}
	}
	return native
}

// ValidIdent reports whether name is safe to splice into SQL as a table or column.
func ValidIdent(name string) bool {
	return identRe.MatchString(name)
}

// LoadCustomers reads every row of table. Columns are matched case-insensitively
// against the telco export names; rows that cannot be converted become warnings.
func LoadCustomers(ctx context.Context, db *DB, table string, verbose bool, logger *slog.Logger) (*loader.Result, error) {
	if !ValidIdent(table) {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "invalid table name "+table)
	}

	var count int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&count); err != nil {
		return nil, fmt.Errorf("count %s: %w", table, err)
	}
	logger.Debug("customer table size", "table", table, "rows", count)

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if err := loader.CheckColumns(cols); err != nil {
		return nil, err
	}
	keys := make([]string, len(cols))
	for i, c := range cols {
		keys[i] = strings.ToLower(c)
	}

	var bar *progressbar.ProgressBar
	if verbose {
		bar = progressbar.Default(count, "loading "+table)
	}

	res := &loader.Result{Encoding: db.Driver}
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	rowNum := 0
	for rows.Next() {
		rowNum++
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", rowNum, err)
		}
		fields := make(map[string]string, len(cols))
		for i, k := range keys {
			fields[k] = vals[i].String
		}
		rec, err := loader.RecordFromFields(fields)
		if err != nil {
			res.Warnings = append(res.Warnings, loader.Warning{Row: rowNum, Message: err.Error()})
		} else {
			res.Records = append(res.Records, rec)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// churnByColumnQuery groups table by column in SQL. 100.0 keeps the division decimal.
func churnByColumnQuery(driver, table, column string) string {
	textType := "CHAR"
	if driver == DriverPostgres {
		textType = "TEXT"
	}
	churned := fmt.Sprintf(`SUM(CASE WHEN LOWER(CAST(Churn AS %s)) IN ('yes', '1', 'true') THEN 1 ELSE 0 END)`, textType)
	return fmt.Sprintf(`
		SELECT
			COALESCE(CAST(%[1]s AS %[2]s), '') AS segment,
			COUNT(*) AS total_customers,
			%[3]s AS churned,
			ROUND(100.0 * %[3]s / COUNT(*), 2) AS churn_rate
		FROM %[4]s
		GROUP BY %[1]s
		ORDER BY churn_rate DESC, segment ASC
	`, column, textType, churned, table)
}

// ChurnByColumn computes per-value churn rates inside the database. It is used
// to cross-check the in-memory aggregation; keys are the raw column values.
func ChurnByColumn(ctx context.Context, db *DB, table, column string) ([]models.Segment, error) {
	if !ValidIdent(table) || !ValidIdent(column) {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "invalid identifier "+table+"."+column)
	}
	rows, err := db.QueryContext(ctx, churnByColumnQuery(db.Driver, table, column))
	if err != nil {
		return nil, fmt.Errorf("churn by %s: %w", column, err)
	}
	defer rows.Close()

	var out []models.Segment
	for rows.Next() {
		var (
			seg  models.Segment
			key  sql.NullString
			rate sql.NullFloat64
		)
		if err := rows.Scan(&key, &seg.Total, &seg.Churned, &rate); err != nil {
			return nil, err
		}
		seg.Key = key.String
		seg.ChurnRate = rate.Float64
		out = append(out, seg)
	}
	return out, rows.Err()
}

// NormalizeKeys maps raw column values onto the keys the in-memory aggregation
// uses and merges the groups that collapse together. Empty keys become
// calculator.UnknownKey. The result is ordered like calculator.Aggregate's default.
func NormalizeKeys(segs []models.Segment, norm func(string) string) []models.Segment {
	merged := make(map[string]*models.Segment, len(segs))
	for _, s := range segs {
		key := norm(s.Key)
		if key == "" {
			key = calculator.UnknownKey
		}
		if have, ok := merged[key]; ok {
			have.Total += s.Total
			have.Churned += s.Churned
			continue
		}
		s.Key = key
		merged[key] = &s
	}
	out := make([]models.Segment, 0, len(merged))
	for _, s := range merged {
		s.ChurnRate = calculator.Rate(s.Churned, s.Total)
		out = append(out, *s)
	}
	slices.SortFunc(out, calculator.ByChurnRateDesc)
	return out
}
