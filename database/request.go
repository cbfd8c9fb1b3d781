package database

import (
	"database/sql"

	"github.com/schoolhub-io/schoolhub/model"
	queryHelper "github.com/schoolhub-io/schoolhub/utils/query"
)

func (s *PostgreSQLStore) GetSchools() ([]model.School, error) {
	query := `
		SELECT id, name, code, address, phone, is_active FROM schools WHERE deleted_at IS NULL;
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schools := []model.School{}
	for rows.Next() {
		school, err := scanIntoSchool(rows)
		if err != nil {
			return nil, err
		}
		schools = append(schools, *school)
	}

	return schools, nil
}

func (s *PostgreSQLStore) AddSchool(school model.School) error {

	query := `INSERT INTO schools(name, code, address, phone, is_active, created_at) VALUES($1, $2, $3, $4, TRUE, NOW());`

	_, err := s.db.Exec(query, school.Name, school.Code, school.Address, school.Phone)

	if err != nil {
		return err
	}
	return nil

}

func (s *PostgreSQLStore) UpdateSchool(school model.School) error {
	// Narrow struct keeps field names aligned with single-word columns
	fields := struct {
		Name    string
		Code    string
		Address string
		Phone   string
	}{school.Name, school.Code, school.Address, school.Phone}

	query, values := queryHelper.UpdateQueryBuilder("schools", "id", int64(school.ID), fields)

	_, err := s.db.Exec(query, values...)

	if err != nil {
		return err
	}
	return nil
}

func (s *PostgreSQLStore) DeleteSchool(id int64) error {
	query := "UPDATE schools SET deleted_at=NOW() WHERE id=$1"

	if _, err := s.db.Exec(query, id); err != nil {
		return err
	}

	return nil
}

func scanIntoSchool(rows *sql.Rows) (*model.School, error) {
	school := new(model.School)
	err := rows.Scan(
		&school.ID,
		&school.Name,
		&school.Code,
		&school.Address,
		&school.Phone,
		&school.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return school, nil
}
