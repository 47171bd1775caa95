package handler

import "patientregistry/internal/patient/models"

// PatientResponse is the public record layout.
type PatientResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Email       string `json:"email"`
}

func toResponse(p *models.Patient) *PatientResponse {
	return &PatientResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		PhoneNumber: p.PhoneNumber,
		Email:       p.Email,
	}
}

func toResponses(patients []*models.Patient) []*PatientResponse {
	out := make([]*PatientResponse, 0, len(patients))
	for _, p := range patients {
		out = append(out, toResponse(p))
	}
	return out
}
