package queryHelper

import (
	"fmt"
	"reflect"
	"strings"
)

// UpdateQueryBuilder builds an UPDATE statement from the non-zero fields of
// data, skipping the identifier column. Returns the query and its bind values.
func UpdateQueryBuilder(tableName string, identifier string, id int64, data interface{}) (string, []interface{}) {
	query := fmt.Sprintf("UPDATE %s SET ", tableName)
	values := []interface{}{}

	v := reflect.ValueOf(data)

	index := 1
	for i := 0; i < v.NumField(); i++ {
		if strings.ToLower(v.Type().Field(i).Name) != identifier && !reflect.DeepEqual(v.Field(i).Interface(), reflect.Zero(v.Field(i).Type()).Interface()) {
			query += fmt.Sprintf("%s=$%d, ", strings.ToLower(v.Type().Field(i).Name), index)
			values = append(values, v.Field(i).Interface())
			index++
		}
	}

	query = strings.TrimSuffix(query, ", ")
	query += fmt.Sprintf(" WHERE %s=$%d;", identifier, len(values)+1)

	values = append(values, id)

	return query, values
}
