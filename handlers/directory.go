package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/schoolhub-io/schoolhub/database"
	utils "github.com/schoolhub-io/schoolhub/utils"
)

// HandleSchoolDirectory lists active schools with their join codes.
// Registration asks for a school code, so this endpoint stays public.
func HandleSchoolDirectory(c *fiber.Ctx, store database.Storage) error {
	schools, err := store.GetSchools()
	if err != nil {
		return err
	}

	type directoryEntry struct {
		Name string `json:"name"`
		Code string `json:"code"`
	}

	directory := []directoryEntry{}
	for _, school := range schools {
		if !school.IsActive {
			continue
		}
		directory = append(directory, directoryEntry{Name: school.Name, Code: school.Code})
	}

	utils.WriteJSON(c, 200, directory, nil, nil)
	return nil
}
