package cmd

import (
	"fmt"

	"srtrelay-backend/services/expedientes"
	"srtrelay-backend/services/expedientes/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(casosCmd)
	casosCmd.AddCommand(casosListCmd)
	casosCmd.AddCommand(casosComunicacionesCmd)
}

var casosCmd = &cobra.Command{
	Use:   "casos",
	Short: "Work with portal cases through the relay.",
}

var casosListCmd = &cobra.Command{
	Use:   "list",
	Short: "Logs into the portal, links pending cases and lists the expedientes.",
	Args:  cobra.MaximumNArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Success     bool                            `json:"success"`
			Stats       expedientes.LinkStats           `json:"stats"`
			Expedientes []expedientes.ExpedienteSummary `json:"expedientes"`
		}
		res, err := client.R().
			SetContext(cmd.Context()).
			SetBody(map[string]string{"usuario": usuario, "password": password}).
			SetResult(&out).
			Post("/srt/vincular-casos")
		if err != nil {
			fatal(err)
		}
		if res.IsError() {
			fatal(fmt.Errorf("%s: %s", res.Status(), res.String()))
		}

		t := newTable()
		t.AppendHeader(table.Row{"OID", "Número", "Damnificado", "CUIL", "Motivo"})
		for _, exp := range out.Expedientes {
			t.AppendRow(table.Row{exp.Oid, exp.Numero, exp.Nombre, exp.Cuil, exp.Motivo})
		}
		t.Render()

		fmt.Printf("encontrados=%d vinculados=%d sin_match=%d\n",
			out.Stats.CasosEncontrados, out.Stats.CasosVinculados, out.Stats.CasosSinMatch)
	},
}

var casosComunicacionesCmd = &cobra.Command{
	Use:   "comunicaciones <expediente-oid>",
	Short: "Lists the stored communications of an expediente.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var out struct {
			Comunicaciones []db.Comunicacion `json:"comunicaciones"`
		}
		res, err := client.R().
			SetContext(cmd.Context()).
			SetResult(&out).
			Get("/srt/comunicaciones/" + args[0])
		if err != nil {
			fatal(err)
		}
		if res.IsError() {
			fatal(fmt.Errorf("%s: %s", res.Status(), res.String()))
		}

		t := newTable()
		t.AppendHeader(table.Row{"TraID", "Notificación", "Tipo", "Estado", "Adjuntos"})
		for _, com := range out.Comunicaciones {
			fecha := ""
			if com.FechaNotificacion != nil {
				fecha = com.FechaNotificacion.Format("02/01/2006 15:04")
			}
			t.AppendRow(table.Row{com.TraId, fecha, com.TipoComunicacion, com.Estado, len(com.Adjuntos)})
		}
		t.Render()
	},
}
