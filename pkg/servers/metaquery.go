package servers

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var metaKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// metaExpr renders SQL reading meta[namespace][field] as text for the
// connected dialect. Keys are inlined, so they are restricted to a safe
// character set.
func metaExpr(db *gorm.DB, namespace, field string) (string, error) {
	if !metaKeyPattern.MatchString(namespace) || (field != "" && !metaKeyPattern.MatchString(field)) {
		return "", fmt.Errorf("unsupported meta key %q/%q", namespace, field)
	}
	switch db.Dialector.Name() {
	case "postgres":
		if field == "" {
			return fmt.Sprintf("meta -> '%s'", namespace), nil
		}
		return fmt.Sprintf("meta -> '%s' ->> '%s'", namespace, field), nil
	case "mysql":
		if field == "" {
			return fmt.Sprintf(`JSON_EXTRACT(meta, '$."%s"')`, namespace), nil
		}
		return fmt.Sprintf(`JSON_UNQUOTE(JSON_EXTRACT(meta, '$."%s".%s'))`, namespace, field), nil
	default:
		if field == "" {
			return fmt.Sprintf(`json_extract(meta, '$."%s"')`, namespace), nil
		}
		return fmt.Sprintf(`json_extract(meta, '$."%s".%s')`, namespace, field), nil
	}
}

// metaBoolLiteral is the text a boolean meta field compares equal to.
func metaBoolLiteral(db *gorm.DB, v bool) any {
	if db.Dialector.Name() == "postgres" || db.Dialector.Name() == "mysql" {
		if v {
			return "true"
		}
		return "false"
	}
	if v {
		return 1
	}
	return 0
}

// whereMetaAny restricts q to rows where any of the namespaces has
// field == value.
func whereMetaAny(db, q *gorm.DB, namespaces []string, field string, value any) (*gorm.DB, error) {
	group := db.Session(&gorm.Session{NewDB: true})
	var cond *gorm.DB
	for _, ns := range namespaces {
		expr, err := metaExpr(db, ns, field)
		if err != nil {
			return nil, err
		}
		if cond == nil {
			cond = group.Where(expr+" = ?", value)
		} else {
			cond = cond.Or(expr+" = ?", value)
		}
	}
	if cond == nil {
		return q, nil
	}
	return q.Where(cond), nil
}
