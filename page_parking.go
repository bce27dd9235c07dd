package main

import (
	"fmt"
	"time"
)

// ParkingTicketPage drives the roadside parking ticket search and the
// payment options that follow it.
type ParkingTicketPage struct {
	basePage
}

func NewParkingTicketPage(page Page, baseURL string) *ParkingTicketPage {
	return &ParkingTicketPage{basePage: basePage{page: page, baseURL: baseURL}}
}

// Navigate opens /ParkingTicket directly.
func (p *ParkingTicketPage) Navigate() error {
	if err := p.goTo("/ParkingTicket"); err != nil {
		return err
	}
	p.WaitReady(readyTimeout)
	return nil
}

// NavigateFromFooter follows the footer's parking ticket link.
func (p *ParkingTicketPage) NavigateFromFooter() error {
	if err := p.waitVisible(selFooter, "footer navigation", elementTimeout); err != nil {
		return err
	}
	if err := p.click(selFooterTicketsLink, "footer parking ticket link", elementTimeout); err != nil {
		return err
	}
	p.WaitReady(readyTimeout)
	return nil
}

// WaitReady waits for the loading mask to clear if it is showing.
func (p *ParkingTicketPage) WaitReady(timeout time.Duration) {
	p.waitGone(selLoadingMask, timeout)
}

func (p *ParkingTicketPage) AssertOnPage() error {
	return p.assertURLContains("ParkingTicket", elementTimeout)
}

func (p *ParkingTicketPage) EnterPlateNumber(plate string) error {
	return p.fill(selCarNumberInput, plate, "car number input", elementTimeout)
}

func (p *ParkingTicketPage) ClickSearch() error {
	return p.click(selSearchButton, "search button", elementTimeout)
}

// SearchPlate enters plate, searches and waits for the results to load.
func (p *ParkingTicketPage) SearchPlate(plate string) error {
	if err := p.EnterPlateNumber(plate); err != nil {
		return err
	}
	if err := p.ClickSearch(); err != nil {
		return err
	}
	p.WaitReady(readyTimeout)
	return nil
}

// TicketCount returns the number of unpaid tickets listed.
func (p *ParkingTicketPage) TicketCount() (int, error) {
	return p.page.Count(selTicketCheckbox)
}

func (p *ParkingTicketPage) HasResults() bool {
	n, err := p.TicketCount()
	return err == nil && n > 0
}

func (p *ParkingTicketPage) HasNoResultMessage() bool {
	n, err := p.page.Count(selNoResult)
	return err == nil && n > 0
}

func (p *ParkingTicketPage) SelectFirstTicket() error {
	return p.check(selTicketCheckbox, "first unpaid ticket", elementTimeout)
}

func (p *ParkingTicketPage) ClickPay() error {
	return p.click(selPayButton, "pay button", elementTimeout)
}

// SelectPaymentMethod picks a payment method by name (credit_card, line_pay).
func (p *ParkingTicketPage) SelectPaymentMethod(method string) error {
	value, ok := paymentMethods[method]
	if !ok {
		return fmt.Errorf("unknown payment method: %s", method)
	}
	return p.selectOption(selPaymentMethod, value, "payment method select", elementTimeout)
}

// SelectInvoiceOption picks how the e-invoice is stored, by name
// (barcode, citizen_digital, donation_919, ...).
func (p *ParkingTicketPage) SelectInvoiceOption(option string) error {
	value, ok := invoiceOptions[option]
	if !ok {
		return fmt.Errorf("unknown invoice option: %s", option)
	}
	return p.selectOption(selInvoiceOption, value, "invoice option select", elementTimeout)
}
