package entities

// BookingEmailData feeds the email template in the sender service.
type BookingEmailData struct {
	UserName           string
	BookingCode        string
	SpotID             string
	Zone               string
	StartTimeFormatted string
	EndTimeFormatted   string
	Status             string
	CurrentYear        int
}
