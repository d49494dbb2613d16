package service

import (
	"fmt"
	"log"
	"time"

	"parkcore/internal/entities"
)

// SenderService delivers booking status emails and SMS. Sends run on their
// own goroutine so a slow provider never blocks the booking path.
type SenderService struct{}

func NewSenderService() *SenderService {
	return &SenderService{}
}

func (s *SenderService) NotifyBookingStatus(b entities.Booking, status string) {
	data := entities.BookingEmailData{
		UserName:           b.UserName,
		BookingCode:        b.Code,
		SpotID:             b.SpotID,
		Zone:               b.Zone,
		StartTimeFormatted: b.Window.Start.Format("02 Jan 2006 15:04 MST"),
		EndTimeFormatted:   b.Window.End.Format("02 Jan 2006 15:04 MST"),
		Status:             status,
		CurrentYear:        time.Now().UTC().Year(),
	}

	subject := fmt.Sprintf("Your ParkCore booking is %s - Code: %s", status, data.BookingCode)
	plainBody := fmt.Sprintf(
		"Hello %s,\n\nYour booking is %s.\n\n"+
			"Booking Details:\n"+
			"Booking Code: %s\n"+
			"Spot: %s (Zone: %s)\n"+
			"From: %s\n"+
			"Until: %s\n\n"+
			"Thank you for choosing ParkCore.\n\n"+
			"%d ParkCore. All rights reserved.",
		data.UserName, status, data.BookingCode, data.SpotID, data.Zone,
		data.StartTimeFormatted, data.EndTimeFormatted, data.CurrentYear,
	)
	htmlBody := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your booking <strong>%s</strong> is %s.</p>"+
			"<p>Spot: %s (Zone: %s)<br>From: %s<br>Until: %s</p>",
		data.UserName, data.BookingCode, status, data.SpotID, data.Zone,
		data.StartTimeFormatted, data.EndTimeFormatted,
	)

	if b.UserEmail != "" {
		go func() {
			if err := SendEmailWithSendGrid(b.UserEmail, data.UserName, subject, plainBody, htmlBody); err != nil {
				log.Printf("failed to send email for booking %s: %v", data.BookingCode, err)
			}
		}()
	}

	if b.UserPhone != "" {
		sms := fmt.Sprintf("ParkCore: booking %s is %s.\nFrom: %s.\nMore details in your email.",
			data.BookingCode, status, b.Window.Start.Format("02/01 15:04"))
		go func() {
			if err := SendSMS(b.UserPhone, sms); err != nil {
				log.Printf("failed to send SMS for booking %s: %v", data.BookingCode, err)
			}
		}()
	}
}
